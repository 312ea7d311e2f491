package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

// JobPayload is the queue message body for one uploaded document. The first
// four fields mirror the upload record; the rest are optional.
type JobPayload struct {
	OriginalName  string `json:"originalname"`
	Filename      string `json:"filename"`
	Destination   string `json:"destination"`
	Path          string `json:"path"`
	JobID         string `json:"job_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	// DocumentID is the SHA256 of the file computed at upload. The worker
	// hashes the file itself when it is missing.
	DocumentID string `json:"document_id,omitempty"`
}

var (
	// ErrJobCompleted means a redelivered message refers to a finished job.
	ErrJobCompleted = errors.New("job already completed")
	// ErrJobLeased means another worker holds an unexpired lease on the job.
	ErrJobLeased = errors.New("job leased by another worker")
	// ErrJobFailed means the job was given up on and awaits an operator retry.
	ErrJobFailed = errors.New("job failed permanently")
	// ErrLeaseLost means the job was claimed again after our lease expired.
	ErrLeaseLost = errors.New("job lease lost to another delivery")
)

// Lease is one worker's hold on a job for a single attempt. Token changes on
// every claim.
type Lease struct {
	Attempt int
	Token   string
}

// JobStore records job progress. Only the worker moves a job out of queued.
// The methods taking a token return ErrLeaseLost when that token no longer
// holds the job.
type JobStore interface {
	EnsureQueued(ctx context.Context, id string, p JobPayload) error
	Claim(ctx context.Context, id string, lease time.Duration) (Lease, error)
	ExtendLease(ctx context.Context, id, token string, lease time.Duration) error
	Complete(ctx context.Context, id, token, documentID string, chunkCount int) error
	Requeue(ctx context.Context, id, token, reason string) error
	FailAttempt(ctx context.Context, id, token, reason string) error
	// Fail gives up on a job that has not finished, whoever holds it.
	Fail(ctx context.Context, id, reason string) error
}

// ChunkWriter embeds and stores one chunk.
type ChunkWriter interface {
	Upsert(ctx context.Context, id, text string, md vector.Metadata) error
}
