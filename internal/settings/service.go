// Package settings holds the runtime-tunable values kept in the single-row
// settings table: the Gemini API key and the retrieval depth.
package settings

import (
	"context"
	"fmt"

	"github.com/Akashbains10/pdf-assistant/internal/apperr"
)

type Settings struct {
	ID           int    `json:"-"`
	GeminiAPIKey string `json:"gemini_api_key"`
	// SearchTopK overrides the configured retrieval depth. Zero means unset.
	SearchTopK int `json:"search_top_k"`
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	GeminiAPIKey *string `json:"gemini_api_key"`
	SearchTopK   *int    `json:"search_top_k"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if set.SearchTopK < 0 {
		return apperr.Validation("settings.update", fmt.Sprintf("search_top_k must be positive or 0 to clear, got %d", set.SearchTopK))
	}
	return s.repo.Update(ctx, set)
}

func (s *Service) Apply(ctx context.Context, p Patch) (*Settings, error) {
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if p.GeminiAPIKey != nil {
		cur.GeminiAPIKey = *p.GeminiAPIKey
	}
	if p.SearchTopK != nil {
		cur.SearchTopK = *p.SearchTopK
	}
	if err := s.Update(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

// SeedAPIKey stores key when no key has been configured yet. It reports
// whether anything was written.
func (s *Service) SeedAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return false, err
	}
	if cur.GeminiAPIKey != "" {
		return false, nil
	}
	cur.GeminiAPIKey = key
	return true, s.repo.Update(ctx, cur)
}
