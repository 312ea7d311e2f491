package gemini

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Embedder embeds text with the API key currently stored in settings.
type Embedder struct {
	cache *clientCache
	model string
}

func NewDynamicEmbedder(keys KeySource, model string, opts ...option.ClientOption) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{cache: &clientCache{keys: keys, opts: opts}, model: model}
}

// NewEmbedder embeds with a fixed API key.
func NewEmbedder(apiKey, model string, opts ...option.ClientOption) *Embedder {
	return NewDynamicEmbedder(staticKey(apiKey), model, opts...)
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := e.cache.get(ctx)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	res, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("empty embedding received")
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) Close() error {
	return e.cache.Close()
}
