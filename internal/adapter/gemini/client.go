// Package gemini adapts Google's Generative Language API to the embedding and
// completion interfaces used by ingestion and retrieval.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Akashbains10/pdf-assistant/internal/settings"
)

const (
	DefaultEmbeddingModel  = "gemini-embedding-001"
	DefaultCompletionModel = "gemini-2.0-flash"
)

var ErrNoAPIKey = errors.New("gemini api key not configured")

// KeySource yields the settings row holding the current API key.
type KeySource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// clientCache holds one genai client and rebuilds it when the key changes.
type clientCache struct {
	keys       KeySource
	opts       []option.ClientOption
	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

func (c *clientCache) get(ctx context.Context) (*genai.Client, error) {
	s, err := c.keys.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, ErrNoAPIKey
	}
	return c.forKey(ctx, s.GeminiAPIKey)
}

func (c *clientCache) forKey(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption{}, c.opts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	c.client = client
	c.currentKey = key
	return client, nil
}

func (c *clientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.currentKey = ""
	return err
}

// staticKey serves a fixed key, for processes configured from the
// environment only.
type staticKey string

func (k staticKey) Get(ctx context.Context) (*settings.Settings, error) {
	return &settings.Settings{GeminiAPIKey: string(k)}, nil
}
