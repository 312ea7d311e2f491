package job

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var (
	ErrNotFound     = errors.New("job not found")
	ErrNotRetryable = errors.New("only failed jobs can be retried")
)

type Job struct {
	ID           string          `json:"id"`
	SourcePath   string          `json:"source_path"`
	OriginalName string          `json:"original_name"`
	Filename     string          `json:"filename"`
	Destination  string          `json:"destination"`
	DocumentID   string          `json:"document_id,omitempty"`
	Status       Status          `json:"status"`
	Attempts     int             `json:"attempts"`
	ChunkCount   int             `json:"chunk_count"`
	Error        string          `json:"error,omitempty"`
	Payload      json.RawMessage `json:"-"`
	LeasedUntil  *time.Time      `json:"leased_until,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
