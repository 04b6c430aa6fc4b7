package gemini

import (
	"context"
	"log/slog"

	"claudima/internal/llmprovider"
)

type Factory struct{}

func (f *Factory) Create(cfg llmprovider.GroupConfig) ([]llmprovider.Client, error) {
	var clients []llmprovider.Client
	for _, model := range cfg.Models {
		client, err := NewClient(context.Background(), cfg.APIKey, model)
		if err != nil {
			slog.Error("failed to create gemini classifier client", "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llmprovider.RegisterProvider("gemini", &Factory{})
}
