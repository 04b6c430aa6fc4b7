// Package openailm wraps the official OpenAI Go SDK for the classifier's
// one-shot completion needs, trimmed from the teacher's streaming,
// tool-calling client down to a single blocking Complete() call.
package openailm

import (
	"context"
	"fmt"
	"strings"

	"claudima/internal/llmprovider"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey, model, baseURL string) (*Client, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &Client{client: &c, model: model}, nil
}

func (c *Client) Complete(ctx context.Context, messages []llmprovider.Message) (string, *llmprovider.Usage, error) {
	var apiMsgs []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			apiMsgs = append(apiMsgs, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Role:    "system",
					Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.Text)},
				},
			})
		default:
			apiMsgs = append(apiMsgs, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Role:    "user",
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Text)},
				},
			})
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: apiMsgs,
	})
	if err != nil {
		return "", nil, fmt.Errorf("openai classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("openai classify: empty response")
	}

	usage := &llmprovider.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "503")
}
