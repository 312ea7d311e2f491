package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
	"github.com/Akashbains10/pdf-assistant/internal/config"
	"github.com/Akashbains10/pdf-assistant/internal/middleware"
	"github.com/Akashbains10/pdf-assistant/internal/storage"
	"github.com/Akashbains10/pdf-assistant/internal/worker"
)

const (
	DefaultPublishTimeout = 5 * time.Second
	DefaultListLimit      = 100
)

var errPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	PublishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger, PublishTimeout: DefaultPublishTimeout}
}

// Enqueue records a queued job for an uploaded file and hands it to the
// ingestion topic. If the broker does not accept the message the job is
// marked failed and a queue error is returned.
func (s *Service) Enqueue(ctx context.Context, f *storage.StoredFile) (*Job, error) {
	id := uuid.New().String()
	payload := worker.JobPayload{
		OriginalName:  f.OriginalName,
		Filename:      f.Filename,
		Destination:   f.Destination,
		Path:          f.Path,
		JobID:         id,
		CorrelationID: middleware.GetCorrelationID(ctx),
		DocumentID:    f.Hash,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	j := &Job{
		ID:           id,
		SourcePath:   f.Path,
		OriginalName: f.OriginalName,
		Filename:     f.Filename,
		Destination:  f.Destination,
		Status:       StatusQueued,
		Payload:      body,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, apperr.New(apperr.ErrQueue, "job.enqueue", err)
	}

	if err := s.publish(ctx, body); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish ingestion job", "job_id", id, "error", err)
		j.Status = StatusFailed
		j.Error = err.Error()
		if ferr := s.repo.Fail(context.WithoutCancel(ctx), id, err.Error()); ferr != nil {
			s.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", id, "error", ferr)
		}
		return j, apperr.New(apperr.ErrQueue, "job.enqueue", err)
	}

	s.logger.InfoContext(ctx, "ingestion job enqueued", "job_id", id, "path", f.Path)
	return j, nil
}

// Retry puts a failed job back on the queue with a fresh attempt budget.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status != StatusFailed {
		return ErrNotRetryable
	}

	body, err := retryPayload(j, middleware.GetCorrelationID(ctx))
	if err != nil {
		return err
	}

	if err := s.repo.ResetForRetry(ctx, id); err != nil {
		return err
	}

	if err := s.publish(ctx, body); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish retried job", "job_id", id, "error", err)
		if ferr := s.repo.Fail(context.WithoutCancel(ctx), id, err.Error()); ferr != nil {
			s.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", id, "error", ferr)
		}
		return apperr.New(apperr.ErrQueue, "job.retry", err)
	}
	return nil
}

// retryPayload rebuilds the message from the stored one, falling back to the
// row's columns when the stored payload is unusable.
func retryPayload(j *Job, correlationID string) ([]byte, error) {
	var p worker.JobPayload
	if len(j.Payload) == 0 || json.Unmarshal(j.Payload, &p) != nil || p.Path == "" {
		p = worker.JobPayload{
			OriginalName: j.OriginalName,
			Filename:     j.Filename,
			Destination:  j.Destination,
			Path:         j.SourcePath,
		}
	}
	p.JobID = j.ID
	p.CorrelationID = correlationID
	return json.Marshal(p)
}

func (s *Service) publish(ctx context.Context, body []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestDocument, body)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(s.PublishTimeout):
		return errPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status) ([]Job, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("job.list", "unknown status "+string(status))
	}
	return s.repo.List(ctx, status, DefaultListLimit)
}

func (s *Service) Counts(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}
