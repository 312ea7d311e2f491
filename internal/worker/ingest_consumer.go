package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"golang.org/x/sync/errgroup"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
	"github.com/Akashbains10/pdf-assistant/internal/extract"
	"github.com/Akashbains10/pdf-assistant/internal/middleware"
	"github.com/Akashbains10/pdf-assistant/internal/storage"
	"github.com/Akashbains10/pdf-assistant/internal/text"
	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

type Options struct {
	ChunkSize          int
	ChunkOverlap       int
	UpsertConcurrency  int
	MaxAttempts        int
	EmbedRetryAttempts int
	Lease              time.Duration
	// HeartbeatInterval is how often a running job renews its lease and
	// touches its message. Defaults to a third of Lease.
	HeartbeatInterval time.Duration
	// RetryInterval is the first per-chunk backoff delay.
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = text.DefaultChunkSize
	}
	if o.UpsertConcurrency <= 0 {
		o.UpsertConcurrency = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.EmbedRetryAttempts <= 0 {
		o.EmbedRetryAttempts = 3
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.HeartbeatInterval <= 0 || o.HeartbeatInterval >= o.Lease {
		o.HeartbeatInterval = max(o.Lease/3, time.Millisecond)
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	return o
}

// IngestConsumer turns one queued document into indexed chunks.
type IngestConsumer struct {
	jobs      JobStore
	writer    ChunkWriter
	extractor extract.Extractor
	opts      Options
	logger    *slog.Logger
}

func NewIngestConsumer(jobs JobStore, writer ChunkWriter, extractor extract.Extractor, opts Options, logger *slog.Logger) *IngestConsumer {
	return &IngestConsumer{
		jobs:      jobs,
		writer:    writer,
		extractor: extractor,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// HandleMessage returns nil to ack and an error to have NSQ requeue.
func (c *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var p JobPayload
	err := json.Unmarshal(m.Body, &p)

	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		c.logger.ErrorContext(ctx, "invalid message format, dropping", "error", err, "attempts", m.Attempts)
		return nil
	}
	if strings.TrimSpace(p.Path) == "" {
		c.logger.ErrorContext(ctx, "message without path, dropping", "filename", p.Filename)
		return nil
	}

	jobID := p.JobID
	if jobID == "" {
		jobID = string(m.ID[:])
	}
	ctx = middleware.WithJobID(ctx, jobID)

	return c.process(ctx, p, jobID, func() {
		if m.Delegate != nil {
			m.Touch()
		}
	})
}

// Process runs one delivery of a job. A nil return means the message is
// settled, either completed, failed for good, a duplicate, or taken over by
// another delivery.
func (c *IngestConsumer) Process(ctx context.Context, p JobPayload, jobID string) error {
	return c.process(ctx, p, jobID, nil)
}

func (c *IngestConsumer) process(ctx context.Context, p JobPayload, jobID string, touch func()) error {
	if err := c.jobs.EnsureQueued(ctx, jobID, p); err != nil {
		c.logger.ErrorContext(ctx, "failed to record job", "error", err)
		return err
	}

	lease, err := c.jobs.Claim(ctx, jobID, c.opts.Lease)
	switch {
	case errors.Is(err, ErrJobCompleted):
		c.logger.InfoContext(ctx, "duplicate delivery of completed job, skipping")
		return nil
	case errors.Is(err, ErrJobFailed):
		c.logger.InfoContext(ctx, "job already failed, skipping")
		return nil
	case errors.Is(err, ErrJobLeased):
		c.logger.InfoContext(ctx, "job leased by another worker, requeueing")
		return err
	case err != nil:
		c.logger.ErrorContext(ctx, "failed to claim job", "error", err)
		return err
	}

	attempt := lease.Attempt
	c.logger.InfoContext(ctx, "ingesting document", "path", p.Path, "original_name", p.OriginalName, "attempt", attempt)
	start := time.Now()

	runCtx, stop := context.WithCancelCause(ctx)
	beat := make(chan struct{})
	go func() {
		defer close(beat)
		c.heartbeat(runCtx, jobID, lease.Token, touch, stop)
	}()
	documentID, chunks, err := c.ingest(runCtx, p)
	stop(nil)
	<-beat

	if errors.Is(context.Cause(runCtx), ErrLeaseLost) {
		c.logger.WarnContext(ctx, "job taken over by another delivery, abandoning attempt", "attempt", attempt)
		return nil
	}

	// Bookkeeping must land even when the delivery context is gone.
	bg := context.WithoutCancel(ctx)
	if err == nil {
		err := c.jobs.Complete(bg, jobID, lease.Token, documentID, chunks)
		if c.leaseLost(ctx, err, attempt) {
			return nil
		}
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to mark job completed", "error", err)
			return err
		}
		c.logger.InfoContext(ctx, "document ingested", "document_id", documentID, "chunks", chunks, "duration", time.Since(start))
		return nil
	}

	terminal := errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrExtraction)
	if terminal || attempt >= c.opts.MaxAttempts {
		c.logger.ErrorContext(ctx, "ingestion failed", "error", err, "attempt", attempt, "terminal", terminal)
		ferr := c.jobs.FailAttempt(bg, jobID, lease.Token, err.Error())
		if c.leaseLost(ctx, ferr, attempt) {
			return nil
		}
		if ferr != nil {
			c.logger.ErrorContext(ctx, "failed to mark job failed", "error", ferr)
			return ferr
		}
		return nil
	}

	c.logger.WarnContext(ctx, "ingestion attempt failed, will retry", "error", err, "attempt", attempt, "max_attempts", c.opts.MaxAttempts)
	rerr := c.jobs.Requeue(bg, jobID, lease.Token, err.Error())
	if c.leaseLost(ctx, rerr, attempt) {
		return nil
	}
	if rerr != nil {
		c.logger.ErrorContext(ctx, "failed to requeue job", "error", rerr)
	}
	return err
}

// leaseLost reports whether err says another delivery owns the job now. Its
// outcome stands and this delivery is acked.
func (c *IngestConsumer) leaseLost(ctx context.Context, err error, attempt int) bool {
	if !errors.Is(err, ErrLeaseLost) {
		return false
	}
	c.logger.WarnContext(ctx, "job taken over by another delivery, dropping result", "attempt", attempt)
	return true
}

// heartbeat renews the job lease and touches the message until ctx ends. It
// cancels the attempt through lost when the lease turns out to be gone.
func (c *IngestConsumer) heartbeat(ctx context.Context, jobID, token string, touch func(), lost context.CancelCauseFunc) {
	t := time.NewTicker(c.opts.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if touch != nil {
			touch()
		}
		err := c.jobs.ExtendLease(context.WithoutCancel(ctx), jobID, token, c.opts.Lease)
		switch {
		case errors.Is(err, ErrLeaseLost):
			lost(ErrLeaseLost)
			return
		case err != nil:
			c.logger.WarnContext(ctx, "failed to extend job lease", "error", err)
		}
	}
}

// LogFailedMessage is called by NSQ once a message ran out of delivery
// attempts.
func (c *IngestConsumer) LogFailedMessage(m *nsq.Message) {
	var p JobPayload
	if err := json.Unmarshal(m.Body, &p); err != nil {
		return
	}
	jobID := p.JobID
	if jobID == "" {
		jobID = string(m.ID[:])
	}
	ctx := middleware.WithJobID(middleware.WithCorrelationID(context.Background(), p.CorrelationID), jobID)
	c.logger.ErrorContext(ctx, "message exceeded delivery attempts", "attempts", m.Attempts)
	if err := c.jobs.Fail(ctx, jobID, fmt.Sprintf("gave up after %d deliveries", m.Attempts)); err != nil {
		c.logger.ErrorContext(ctx, "failed to mark job failed", "error", err)
	}
}

func (c *IngestConsumer) ingest(ctx context.Context, p JobPayload) (documentID string, count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "panic during ingestion", "panic", r)
			err = fmt.Errorf("panic during ingestion: %v", r)
		}
	}()

	info, err := os.Stat(p.Path)
	if err != nil {
		return "", 0, apperr.New(apperr.ErrValidation, "worker.ingest", fmt.Errorf("source file: %w", err))
	}
	if info.IsDir() {
		return "", 0, apperr.Validation("worker.ingest", "source path is a directory: "+p.Path)
	}

	pages, err := c.extractor.Extract(ctx, p.Path)
	if err != nil {
		// A cancelled delivery is retried, not failed for good.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", 0, err
		}
		if !errors.Is(err, apperr.ErrExtraction) {
			err = apperr.New(apperr.ErrExtraction, "worker.ingest", err)
		}
		return "", 0, err
	}

	documentID = p.DocumentID
	if documentID == "" {
		documentID, err = storage.HashFile(p.Path)
		if err != nil {
			return "", 0, apperr.New(apperr.ErrValidation, "worker.ingest", err)
		}
	}

	content, starts := joinPages(pages)
	seq, err := text.Chunks(content, c.opts.ChunkSize, c.opts.ChunkOverlap)
	if err != nil {
		return "", 0, apperr.New(apperr.ErrValidation, "worker.ingest", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.UpsertConcurrency)

	offset := 0
	for idx, chunk := range seq {
		if gctx.Err() != nil {
			break
		}
		md := vector.Metadata{
			SourceDocumentID: documentID,
			ChunkIndex:       idx,
			OriginalName:     p.OriginalName,
			PageNumber:       pages[text.PageOffset(starts, offset)-1].Number,
		}
		id := vector.ChunkID(documentID, idx)
		g.Go(func() error {
			return c.upsertWithRetry(gctx, id, chunk, md)
		})
		count++
		offset += len(chunk) - tailBytes(chunk, c.opts.ChunkOverlap)
	}

	if err := g.Wait(); err != nil {
		return "", 0, err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if count == 0 {
		c.logger.WarnContext(ctx, "document has no text", "path", p.Path)
	}
	return documentID, count, nil
}

func (c *IngestConsumer) upsertWithRetry(ctx context.Context, id, content string, md vector.Metadata) error {
	op := func() error {
		err := c.writer.Upsert(ctx, id, content, md)
		if err != nil && !apperr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RetryInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.EmbedRetryAttempts-1)), ctx)

	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		c.logger.WarnContext(ctx, "chunk upsert failed, backing off", "chunk_index", md.ChunkIndex, "error", err, "delay", d)
	})
}

// joinPages concatenates page texts with a newline and returns the byte
// offset at which each page starts.
func joinPages(pages []extract.Page) (string, []int) {
	var sb strings.Builder
	starts := make([]int, len(pages))
	for i, pg := range pages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		starts[i] = sb.Len()
		sb.WriteString(pg.Text)
	}
	return sb.String(), starts
}

// tailBytes is the byte length of the last n runes of s.
func tailBytes(s string, n int) int {
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}
	return len(s) - i
}
