// Package gemini wraps the Google GenAI SDK for the classifier's
// one-shot completion needs.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"claudima/internal/llmprovider"

	"google.golang.org/genai"
)

type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Complete(ctx context.Context, messages []llmprovider.Message) (string, *llmprovider.Usage, error) {
	var contents []*genai.Content
	var systemInstruction *genai.Content
	for _, m := range messages {
		if m.Role == "system" {
			systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Text}}}
			continue
		}
		contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Text}}})
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		return "", nil, fmt.Errorf("gemini classify: %w", err)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}

	var usage *llmprovider.Usage
	if resp.UsageMetadata != nil {
		usage = &llmprovider.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return text.String(), usage, nil
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused")
}
