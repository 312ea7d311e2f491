// Package retrieval answers questions from indexed document chunks: embed the
// question, fetch the nearest chunks, and ask the completion model to answer
// from them only.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
	"github.com/Akashbains10/pdf-assistant/internal/middleware"
	"github.com/Akashbains10/pdf-assistant/internal/settings"
	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

const DefaultTopK = 2

type Searcher interface {
	Query(ctx context.Context, text string, k int) ([]vector.Match, error)
}

type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Options struct {
	DefaultTopK     int
	MaxContextChars int
}

type AnswerOptions struct {
	TopK int
}

type QueryResult struct {
	Answer           string
	SupportingChunks []vector.Match
}

type Service struct {
	searcher  Searcher
	completer Completer
	settings  SettingsSource
	logger    *QueryLogger
	opts      Options
}

func NewService(searcher Searcher, completer Completer, set SettingsSource, l *QueryLogger, opts Options) *Service {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	return &Service{searcher: searcher, completer: completer, settings: set, logger: l, opts: opts}
}

func (s *Service) topK(ctx context.Context, opts *AnswerOptions) int {
	if opts != nil && opts.TopK > 0 {
		return opts.TopK
	}
	if s.settings != nil {
		set, err := s.settings.Get(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to read settings, using default top k", "error", err)
		} else if set.SearchTopK > 0 {
			return set.SearchTopK
		}
	}
	return s.opts.DefaultTopK
}

func (s *Service) Answer(ctx context.Context, question string, opts *AnswerOptions) (*QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Validation("retrieval.answer", "question must not be empty")
	}
	start := time.Now()
	k := s.topK(ctx, opts)

	matches, err := s.searcher.Query(ctx, question, k)
	if err != nil {
		return nil, err
	}

	systemPrompt, kept := BuildSystemPrompt(matches, s.opts.MaxContextChars)
	if len(kept) < len(matches) {
		slog.DebugContext(ctx, "context budget dropped chunks", "retrieved", len(matches), "kept", len(kept))
	}

	answer, err := s.completer.Complete(ctx, systemPrompt, question)
	if err != nil {
		return nil, apperr.New(apperr.ErrUpstream, "retrieval.complete", err)
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			CorrelationID: middleware.GetCorrelationID(ctx),
			Question:      question,
			TopK:          k,
			Retrieved:     len(matches),
			InPrompt:      len(kept),
			Sources:       chunkRefs(kept),
			AnswerChars:   len(answer),
			Duration:      time.Since(start),
		})
	}

	return &QueryResult{Answer: answer, SupportingChunks: kept}, nil
}
