package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Completer struct {
	cache *clientCache
	model string
}

func NewDynamicCompleter(keys KeySource, model string, opts ...option.ClientOption) *Completer {
	if model == "" {
		model = DefaultCompletionModel
	}
	return &Completer{cache: &clientCache{keys: keys, opts: opts}, model: model}
}

func NewCompleter(apiKey, model string, opts ...option.ClientOption) *Completer {
	return NewDynamicCompleter(staticKey(apiKey), model, opts...)
}

func (c *Completer) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	client, err := c.cache.get(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(userMessage))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", errors.New("empty completion received")
	}
	return sb.String(), nil
}

func (c *Completer) Close() error {
	return c.cache.Close()
}
