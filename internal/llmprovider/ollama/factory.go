package ollama

import (
	"log/slog"

	"claudima/internal/llmprovider"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Factory struct{}

func (f *Factory) Create(cfg llmprovider.GroupConfig) ([]llmprovider.Client, error) {
	var options map[string]any
	if len(cfg.Options) > 0 {
		if err := json.Unmarshal(cfg.Options, &options); err != nil {
			slog.Warn("failed to parse ollama options", "error", err)
		}
	}

	var clients []llmprovider.Client
	for _, model := range cfg.Models {
		client, err := NewClient(model, cfg.BaseURL, options)
		if err != nil {
			slog.Error("failed to create ollama classifier client", "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llmprovider.RegisterProvider("ollama", &Factory{})
}
