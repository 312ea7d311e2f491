// Package openai adapts the OpenAI API to the embedding and completion
// interfaces. It is selected with LLM_PROVIDER=openai.
package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultEmbeddingModel  = openai.EmbeddingModelTextEmbedding3Small
	DefaultCompletionModel = openai.ChatModelGPT4_1
)

type Client struct {
	api             openai.Client
	embeddingModel  openai.EmbeddingModel
	completionModel openai.ChatModel
}

type Config struct {
	APIKey          string
	EmbeddingModel  string
	CompletionModel string
}

func NewClient(cfg Config, opts ...option.RequestOption) *Client {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)

	c := &Client{
		api:             openai.NewClient(reqOpts...),
		embeddingModel:  DefaultEmbeddingModel,
		completionModel: DefaultCompletionModel,
	}
	if cfg.EmbeddingModel != "" {
		c.embeddingModel = openai.EmbeddingModel(cfg.EmbeddingModel)
	}
	if cfg.CompletionModel != "" {
		c.completionModel = openai.ChatModel(cfg.CompletionModel)
	}
	return c
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", c.embeddingModel, "length", len(text))
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding received")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		Model: c.completionModel,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty completion received")
	}
	return resp.Choices[0].Message.Content, nil
}
