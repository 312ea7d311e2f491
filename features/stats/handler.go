package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Akashbains10/pdf-assistant/features/job"
	"github.com/Akashbains10/pdf-assistant/internal/middleware"
)

type JobCounter interface {
	Counts(ctx context.Context) (map[job.Status]int, error)
}

type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	jobs   JobCounter
	chunks ChunkCounter
}

func NewHandler(j JobCounter, c ChunkCounter) *Handler {
	return &Handler{jobs: j, chunks: c}
}

type StatsResponse struct {
	Jobs       map[job.Status]int `json:"jobs"`
	FailedJobs int                `json:"failed_jobs"`
	Chunks     int                `json:"chunks"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slog.InfoContext(ctx, "getting stats")

	counts, err := h.jobs.Counts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	chunks, err := h.chunks.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Jobs:       map[job.Status]int{},
		FailedJobs: counts[job.StatusFailed],
		Chunks:     chunks,
	}
	for _, s := range []job.Status{job.StatusQueued, job.StatusProcessing, job.StatusCompleted, job.StatusFailed} {
		resp.Jobs[s] = counts[s]
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
