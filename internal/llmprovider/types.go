// Package llmprovider is the pluggable LLM client stack used by the
// moderation pipeline's ambiguous-message classifier. It carries the
// teacher's multi-provider registry/fallback pattern forward, trimmed to
// the one-shot completion shape the classifier actually needs (the
// Reasoner Bridge, by contrast, owns its own persistent conversation
// inside the claude subprocess and does not go through this package).
package llmprovider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is a single turn of a one-shot completion request.
type Message struct {
	Role string `json:"role"` // "system" | "user"
	Text string `json:"text"`
}

// Usage is a normalized token accounting record.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Client is the common interface every provider backend implements.
type Client interface {
	// Complete sends messages and returns the model's full text response.
	Complete(ctx context.Context, messages []Message) (string, *Usage, error)
	// IsTransientError classifies whether err is worth retrying.
	IsTransientError(err error) bool
}

// FallbackClient tries each Client in order, retrying transient errors
// before falling through to the next provider.
type FallbackClient struct {
	Clients    []Client
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Complete(ctx context.Context, messages []Message) (string, *Usage, error) {
	var lastErr error
	for i, client := range f.Clients {
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}
		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				select {
				case <-ctx.Done():
					return "", nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}
			text, usage, err := client.Complete(ctx, messages)
			if err == nil {
				return text, usage, nil
			}
			lastErr = err
			if client.IsTransientError(err) && retry < maxRetries {
				slog.Warn("classifier provider failed with transient error, retrying", "provider", i, "error", err)
				continue
			}
			slog.Warn("classifier provider failed", "provider", i, "error", err)
			break
		}
	}
	return "", nil, fmt.Errorf("all classifier providers failed: %w", lastErr)
}

func (f *FallbackClient) IsTransientError(error) bool { return false }
