// Package ollama adapts the teacher's Ollama streaming client into a
// one-shot Complete() call for the classifier, which only ever needs a
// single final verdict string, not a token stream.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"claudima/internal/llmprovider"

	"github.com/ollama/ollama/api"
)

type Client struct {
	client  *api.Client
	model   string
	options map[string]any
}

func NewClient(model, baseURL string, options map[string]any) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	httpClient := &http.Client{Transport: transport}

	var client *api.Client
	var err error
	if baseURL != "" {
		u, perr := url.Parse(baseURL)
		if perr != nil {
			return nil, fmt.Errorf("ollama: invalid base url: %w", perr)
		}
		client = api.NewClient(u, httpClient)
	} else {
		client, err = api.ClientFromEnvironment()
	}
	if err != nil {
		return nil, err
	}

	slog.Info("classifier provider initialized", "provider", "ollama", "model", model, "base_url", baseURL)
	return &Client{client: client, model: model, options: options}, nil
}

func (c *Client) Complete(ctx context.Context, messages []llmprovider.Message) (string, *llmprovider.Usage, error) {
	var apiMsgs []api.Message
	for _, m := range messages {
		apiMsgs = append(apiMsgs, api.Message{Role: m.Role, Content: m.Text})
	}

	noStream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: apiMsgs,
		Options:  c.options,
		Stream:   &noStream,
	}

	var reply strings.Builder
	var usage llmprovider.Usage
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		if resp.Done {
			usage.PromptTokens = resp.PromptEvalCount
			usage.CompletionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("ollama classify: %w", err)
	}
	return reply.String(), &usage, nil
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "overloaded")
}
