package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Akashbains10/pdf-assistant/features/job"
	"github.com/Akashbains10/pdf-assistant/internal/apperr"
	"github.com/Akashbains10/pdf-assistant/internal/config"
	"github.com/Akashbains10/pdf-assistant/internal/middleware"
	"github.com/Akashbains10/pdf-assistant/internal/storage"
	"github.com/Akashbains10/pdf-assistant/internal/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func storedFile() *storage.StoredFile {
	return &storage.StoredFile{
		OriginalName: "report.pdf",
		Filename:     "1700000000000.pdf",
		Destination:  "/uploads",
		Path:         "/uploads/1700000000000.pdf",
		Hash:         "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	}
}

func TestService_Enqueue(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub, testLogger())

	repo.On("Create", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
		return j.Status == job.StatusQueued && j.SourcePath == "/uploads/1700000000000.pdf"
	})).Return(nil)

	var body []byte
	pub.On("Publish", config.TopicIngestDocument, mock.Anything).
		Run(func(args mock.Arguments) { body = args.Get(1).([]byte) }).
		Return(nil)

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	j, err := svc.Enqueue(ctx, storedFile())
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, job.StatusQueued, j.Status)

	var p worker.JobPayload
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "report.pdf", p.OriginalName)
	assert.Equal(t, "/uploads/1700000000000.pdf", p.Path)
	assert.Equal(t, storedFile().Hash, p.DocumentID)
	assert.Equal(t, j.ID, p.JobID)
	assert.Equal(t, "corr-1", p.CorrelationID)

	// The original field names stay on the wire.
	assert.Contains(t, string(body), `"originalname":"report.pdf"`)
	repo.AssertExpectations(t)
}

func TestService_Enqueue_PublishFailure(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub, testLogger())

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nsqd unreachable"))
	repo.On("Fail", mock.Anything, mock.Anything, "nsqd unreachable").Return(nil)

	j, err := svc.Enqueue(context.Background(), storedFile())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrQueue)
	assert.Equal(t, job.StatusFailed, j.Status)
	repo.AssertExpectations(t)
}

func TestService_Enqueue_PublishTimeout(t *testing.T) {
	repo := new(MockRepo)
	pub := &MockPublisher{sleep: 200 * time.Millisecond}
	svc := job.NewService(repo, pub, testLogger())
	svc.PublishTimeout = 20 * time.Millisecond

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	repo.On("Fail", mock.Anything, mock.Anything, "timeout waiting for NSQ publish").Return(nil)

	_, err := svc.Enqueue(context.Background(), storedFile())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrQueue)
	assert.Equal(t, "timeout waiting for NSQ publish", apperr.Message(err))
}

func TestService_Enqueue_RepoFailure(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub, testLogger())

	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := svc.Enqueue(context.Background(), storedFile())
	assert.ErrorIs(t, err, apperr.ErrQueue)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestService_Retry(t *testing.T) {
	payload := []byte(`{"originalname":"a.pdf","filename":"1.pdf","destination":"/up","path":"/up/1.pdf","job_id":"j1"}`)

	t.Run("failed job is republished", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		svc := job.NewService(repo, pub, testLogger())

		repo.On("Get", mock.Anything, "j1").Return(&job.Job{ID: "j1", Status: job.StatusFailed, Payload: payload}, nil)
		repo.On("ResetForRetry", mock.Anything, "j1").Return(nil)

		var body []byte
		pub.On("Publish", config.TopicIngestDocument, mock.Anything).
			Run(func(args mock.Arguments) { body = args.Get(1).([]byte) }).
			Return(nil)

		require.NoError(t, svc.Retry(context.Background(), "j1"))

		var p worker.JobPayload
		require.NoError(t, json.Unmarshal(body, &p))
		assert.Equal(t, "/up/1.pdf", p.Path)
		assert.Equal(t, "j1", p.JobID)
	})

	t.Run("payload rebuilt from columns", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		svc := job.NewService(repo, pub, testLogger())

		repo.On("Get", mock.Anything, "j2").Return(&job.Job{ID: "j2", Status: job.StatusFailed, SourcePath: "/up/2.pdf", Payload: []byte("{}")}, nil)
		repo.On("ResetForRetry", mock.Anything, "j2").Return(nil)

		var body []byte
		pub.On("Publish", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { body = args.Get(1).([]byte) }).
			Return(nil)

		require.NoError(t, svc.Retry(context.Background(), "j2"))
		assert.Contains(t, string(body), `"path":"/up/2.pdf"`)
	})

	t.Run("only failed jobs", func(t *testing.T) {
		repo := new(MockRepo)
		svc := job.NewService(repo, new(MockPublisher), testLogger())
		repo.On("Get", mock.Anything, "j3").Return(&job.Job{ID: "j3", Status: job.StatusProcessing}, nil)

		assert.ErrorIs(t, svc.Retry(context.Background(), "j3"), job.ErrNotRetryable)
		repo.AssertNotCalled(t, "ResetForRetry", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(MockRepo)
		svc := job.NewService(repo, new(MockPublisher), testLogger())
		repo.On("Get", mock.Anything, "nope").Return(nil, job.ErrNotFound)

		assert.ErrorIs(t, svc.Retry(context.Background(), "nope"), job.ErrNotFound)
	})

	t.Run("publish timeout", func(t *testing.T) {
		repo := new(MockRepo)
		pub := &MockPublisher{sleep: 200 * time.Millisecond}
		svc := job.NewService(repo, pub, testLogger())
		svc.PublishTimeout = 20 * time.Millisecond

		repo.On("Get", mock.Anything, "j1").Return(&job.Job{ID: "j1", Status: job.StatusFailed, Payload: payload}, nil)
		repo.On("ResetForRetry", mock.Anything, "j1").Return(nil)
		repo.On("Fail", mock.Anything, "j1", "timeout waiting for NSQ publish").Return(nil)
		pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

		err := svc.Retry(context.Background(), "j1")
		assert.ErrorIs(t, err, apperr.ErrQueue)
		repo.AssertCalled(t, "Fail", mock.Anything, "j1", "timeout waiting for NSQ publish")
	})
}

func TestService_List(t *testing.T) {
	repo := new(MockRepo)
	svc := job.NewService(repo, nil, testLogger())

	repo.On("List", mock.Anything, job.StatusFailed, job.DefaultListLimit).Return([]job.Job{{ID: "1"}, {ID: "2"}}, nil)

	jobs, err := svc.List(context.Background(), job.StatusFailed)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = svc.List(context.Background(), job.Status("bogus"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestService_Counts(t *testing.T) {
	repo := new(MockRepo)
	svc := job.NewService(repo, nil, testLogger())
	repo.On("CountByStatus", mock.Anything).Return(map[job.Status]int{job.StatusCompleted: 4}, nil)

	counts, err := svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts[job.StatusCompleted])
}
