package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// The settings table holds exactly one row.
const rowID = 1

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Get returns the stored settings, or empty settings when the row is missing.
// A NULL search_top_k reads as 0.
func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{ID: rowID}
	var topK sql.NullInt64
	query := `SELECT id, gemini_api_key, search_top_k FROM settings WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, rowID).Scan(&s.ID, &s.GeminiAPIKey, &topK)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	s.SearchTopK = int(topK.Int64)
	return s, nil
}

// Update writes s as the settings row, creating it if needed. A zero
// SearchTopK is stored as NULL.
func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, gemini_api_key, search_top_k, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET gemini_api_key = EXCLUDED.gemini_api_key,
		    search_top_k = EXCLUDED.search_top_k,
		    updated_at = NOW()
	`
	topK := sql.NullInt64{Int64: int64(s.SearchTopK), Valid: s.SearchTopK > 0}
	if _, err := r.db.ExecContext(ctx, query, rowID, s.GeminiAPIKey, topK); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
