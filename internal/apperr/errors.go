// Package apperr holds the error kinds shared by the ingestion and query
// paths. Callers compare kinds with errors.Is and pick retry policy from them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = errors.New("validation error")
	ErrExtraction = errors.New("extraction error")
	ErrEmbedding  = errors.New("embedding error")
	ErrIndex      = errors.New("index error")
	ErrUpstream   = errors.New("upstream error")
	ErrQueue      = errors.New("queue error")
)

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation builds a validation error from a plain message.
func Validation(op, msg string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Err: errors.New(msg)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Message returns the underlying message without the op and kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}

// IsRetryable reports whether err comes from a provider call that may succeed
// on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbedding) || errors.Is(err, ErrIndex)
}

// HTTPStatus maps an error kind to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueue):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrEmbedding), errors.Is(err, ErrIndex):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
