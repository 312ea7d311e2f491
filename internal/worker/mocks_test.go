package worker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
	"github.com/Akashbains10/pdf-assistant/internal/extract"
	"github.com/Akashbains10/pdf-assistant/internal/vector"
	"github.com/Akashbains10/pdf-assistant/internal/worker"
)

// memJobs is a JobStore with the same state machine as the Postgres one.
type memJobs struct {
	mu     sync.Mutex
	jobs   map[string]*memJob
	tokens int
}

type memJob struct {
	status     string
	attempts   int
	token      string
	leased     time.Time
	extended   int
	documentID string
	chunks     int
	reason     string
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]*memJob{}}
}

func (s *memJobs) EnsureQueued(ctx context.Context, id string, p worker.JobPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		s.jobs[id] = &memJob{status: "queued"}
	}
	return nil
}

func (s *memJobs) Claim(ctx context.Context, id string, lease time.Duration) (worker.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return worker.Lease{}, errors.New("no such job")
	}
	switch {
	case j.status == "queued", j.status == "processing" && time.Now().After(j.leased):
		s.tokens++
		j.status = "processing"
		j.attempts++
		j.token = fmt.Sprintf("t%d", s.tokens)
		j.leased = time.Now().Add(lease)
		return worker.Lease{Attempt: j.attempts, Token: j.token}, nil
	case j.status == "completed":
		return worker.Lease{}, worker.ErrJobCompleted
	case j.status == "failed":
		return worker.Lease{}, worker.ErrJobFailed
	default:
		return worker.Lease{}, worker.ErrJobLeased
	}
}

// held returns the job when token still owns it.
func (s *memJobs) held(id, token string) (*memJob, error) {
	j, ok := s.jobs[id]
	if !ok || j.status != "processing" || j.token != token {
		return nil, worker.ErrLeaseLost
	}
	return j, nil
}

func (s *memJobs) ExtendLease(ctx context.Context, id, token string, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.held(id, token)
	if err != nil {
		return err
	}
	j.leased = time.Now().Add(lease)
	j.extended++
	return nil
}

func (s *memJobs) Complete(ctx context.Context, id, token, documentID string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.held(id, token)
	if err != nil {
		return err
	}
	j.status, j.documentID, j.chunks, j.reason = "completed", documentID, chunkCount, ""
	return nil
}

func (s *memJobs) Requeue(ctx context.Context, id, token, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.held(id, token)
	if err != nil {
		return err
	}
	j.status, j.reason = "queued", reason
	return nil
}

func (s *memJobs) FailAttempt(ctx context.Context, id, token, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.held(id, token)
	if err != nil {
		return err
	}
	j.status, j.reason = "failed", reason
	return nil
}

func (s *memJobs) Fail(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		j = &memJob{status: "queued"}
		s.jobs[id] = j
	}
	if j.status == "queued" || j.status == "processing" {
		j.status, j.reason = "failed", reason
	}
	return nil
}

// expire makes the current lease look stale so the next Claim takes over.
func (s *memJobs) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].leased = time.Now().Add(-time.Second)
}

// takeOver claims the job for a new owner as if the current lease had run
// out, in one step.
func (s *memJobs) takeOver(id string) worker.Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens++
	j := s.jobs[id]
	j.attempts++
	j.token = fmt.Sprintf("t%d", s.tokens)
	j.leased = time.Now().Add(time.Minute)
	return worker.Lease{Attempt: j.attempts, Token: j.token}
}

func (s *memJobs) get(id string) memJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return *j
	}
	return memJob{}
}

// MockJobStore is used where a test needs to assert exact calls.
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) EnsureQueued(ctx context.Context, id string, p worker.JobPayload) error {
	return m.Called(ctx, id, p).Error(0)
}

func (m *MockJobStore) Claim(ctx context.Context, id string, lease time.Duration) (worker.Lease, error) {
	args := m.Called(ctx, id, lease)
	return args.Get(0).(worker.Lease), args.Error(1)
}

func (m *MockJobStore) ExtendLease(ctx context.Context, id, token string, lease time.Duration) error {
	return m.Called(ctx, id, token, lease).Error(0)
}

func (m *MockJobStore) Complete(ctx context.Context, id, token, documentID string, chunkCount int) error {
	return m.Called(ctx, id, token, documentID, chunkCount).Error(0)
}

func (m *MockJobStore) Requeue(ctx context.Context, id, token, reason string) error {
	return m.Called(ctx, id, token, reason).Error(0)
}

func (m *MockJobStore) FailAttempt(ctx context.Context, id, token, reason string) error {
	return m.Called(ctx, id, token, reason).Error(0)
}

func (m *MockJobStore) Fail(ctx context.Context, id, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

// fakeExtractor returns canned pages per path.
type fakeExtractor struct {
	pages map[string][]extract.Page
	err   error
	panic bool
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) ([]extract.Page, error) {
	if f.panic {
		panic("corrupt cross-reference table")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[path], nil
}

// gateExtractor holds its first call until release is closed, then returns
// firstErr or the wrapped extractor's pages.
type gateExtractor struct {
	next     extract.Extractor
	firstErr error
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newGateExtractor(next extract.Extractor, firstErr error) *gateExtractor {
	return &gateExtractor{next: next, firstErr: firstErr, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateExtractor) Extract(ctx context.Context, path string) ([]extract.Page, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if g.firstErr != nil {
			return nil, g.firstErr
		}
	}
	return g.next.Extract(ctx, path)
}

// bagOfWords embeds text as counts over a fixed vocabulary.
type bagOfWords struct {
	vocab []string
}

func (b bagOfWords) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(b.vocab))
	for _, w := range strings.Fields(text) {
		for i, v := range b.vocab {
			if w == v {
				vec[i]++
			}
		}
	}
	return vec, nil
}

// flakyWriter fails chunks listed in failOn, a given number of times each.
type flakyWriter struct {
	mu     sync.Mutex
	next   worker.ChunkWriter
	failOn map[int]int
	err    error
	calls  map[int]int
}

func (w *flakyWriter) Upsert(ctx context.Context, id, text string, md vector.Metadata) error {
	w.mu.Lock()
	if w.calls == nil {
		w.calls = map[int]int{}
	}
	w.calls[md.ChunkIndex]++
	remaining, ok := w.failOn[md.ChunkIndex]
	if ok && remaining != 0 {
		w.failOn[md.ChunkIndex] = remaining - 1
		w.mu.Unlock()
		return w.err
	}
	w.mu.Unlock()
	return w.next.Upsert(ctx, id, text, md)
}

func (w *flakyWriter) callsFor(idx int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[idx]
}

var errIndexDown = apperr.New(apperr.ErrIndex, "test", errors.New("index unavailable"))

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}
