// Package llm wraps a single OpenAI-compatible chat-completions endpoint
// behind a minimal Client interface, and a bounded-retry decorator that
// retries on both errors and a caller-supplied response validator, with
// linear backoff.
//
// Every LLM-backed service in this codebase (Router, Intent classifier,
// SELECT builder) treats the model as a best-effort enricher with a
// deterministic fallback; nothing here is load-bearing for correctness.
package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client is a minimal text-completion interface so callers never depend on
// the concrete SDK type directly, keeping fallback paths and tests cheap to
// write against a fake.
type Client interface {
	// Complete sends prompt as a single user message and returns the raw
	// assistant response text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config configures an OpenAI-compatible chat-completions client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// openAIClient adapts the openai-go SDK to Client, against a custom
// BaseURL so OpenAI-compatible gateways (Groq, etc.) can be targeted
// without code changes.
type openAIClient struct {
	sdk   openai.Client
	model string
}

// NewOpenAIClient builds a Client backed by the openai-go SDK.
func NewOpenAIClient(cfg Config) Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIClient{
		sdk:   openai.NewClient(opts...),
		model: cfg.Model,
	}
}

func (c *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
