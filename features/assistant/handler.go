// Package assistant serves the upload and chat endpoints used by the web
// client. Responses keep the flat {error} shape that client expects.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Akashbains10/pdf-assistant/features/job"
	"github.com/Akashbains10/pdf-assistant/internal/apperr"
	"github.com/Akashbains10/pdf-assistant/internal/extract"
	"github.com/Akashbains10/pdf-assistant/internal/retrieval"
	"github.com/Akashbains10/pdf-assistant/internal/storage"
	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

// multipartMemory is how much of a form is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

type FileStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (*storage.StoredFile, error)
	Remove(f *storage.StoredFile) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, f *storage.StoredFile) (*job.Job, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, opts *retrieval.AnswerOptions) (*retrieval.QueryResult, error)
}

type Handler struct {
	files         FileStore
	jobs          Enqueuer
	answers       Answerer
	maxUploadSize int64
	queryTimeout  time.Duration
}

func NewHandler(files FileStore, jobs Enqueuer, answers Answerer, maxUploadSize int64, queryTimeout time.Duration) *Handler {
	return &Handler{
		files:         files,
		jobs:          jobs,
		answers:       answers,
		maxUploadSize: maxUploadSize,
		queryTimeout:  queryTimeout,
	}
}

type uploadResponse struct {
	FilePath string `json:"filePath"`
	JobID    string `json:"jobId"`
}

type chatResponse struct {
	Message string         `json:"message"`
	Docs    []vector.Match `json:"docs"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if tooLarge(err) {
			writeError(ctx, w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(ctx, w, "No file uploaded", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(ctx, w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !extract.Supported(header.Filename) {
		writeError(ctx, w, "Unsupported file type, expected one of .pdf, .txt, .md", http.StatusBadRequest)
		return
	}

	stored, err := h.files.Save(ctx, header.Filename, file)
	if err != nil {
		if tooLarge(err) {
			writeError(ctx, w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		slog.ErrorContext(ctx, "failed to store upload", "error", err)
		writeError(ctx, w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	j, err := h.jobs.Enqueue(ctx, stored)
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue upload", "error", err, "path", stored.Path)
		// Without a job row nothing refers to the file any more.
		if j == nil {
			if rmErr := h.files.Remove(stored); rmErr != nil {
				slog.WarnContext(ctx, "failed to clean up uploaded file", "error", rmErr)
			}
		}
		writeError(ctx, w, "File stored but could not be queued for processing, please try again later", apperr.HTTPStatus(err))
		return
	}

	slog.InfoContext(ctx, "file uploaded", "job_id", j.ID, "original_name", stored.OriginalName, "size", stored.Size)
	writeJSON(ctx, w, http.StatusOK, uploadResponse{FilePath: stored.PublicPath(), JobID: j.ID})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	message := q.Get("message")
	if strings.TrimSpace(message) == "" {
		writeError(r.Context(), w, "message is required", http.StatusBadRequest)
		return
	}

	var opts *retrieval.AnswerOptions
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 {
			writeError(r.Context(), w, "k must be a positive integer", http.StatusBadRequest)
			return
		}
		opts = &retrieval.AnswerOptions{TopK: k}
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	res, err := h.answers.Answer(ctx, message, opts)
	if err != nil {
		status := apperr.HTTPStatus(err)
		msg := "Failed to answer question"
		switch {
		case errors.Is(err, apperr.ErrValidation):
			msg = apperr.Message(err)
		case errors.Is(err, apperr.ErrUpstream):
			msg = "The language model did not return an answer"
		}
		slog.ErrorContext(ctx, "chat query failed", "error", err, "status", status)
		writeError(ctx, w, msg, status)
		return
	}

	docs := res.SupportingChunks
	if docs == nil {
		docs = []vector.Match{}
	}
	writeJSON(ctx, w, http.StatusOK, chatResponse{Message: res.Answer, Docs: docs})
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	writeJSON(ctx, w, status, map[string]string{"error": message})
}
