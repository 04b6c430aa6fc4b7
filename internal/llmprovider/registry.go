package llmprovider

import jsoniter "github.com/json-iterator/go"

// GroupConfig is the raw per-provider-group slice of the classifier_llm
// config value: {"provider": "ollama", "models": [...], ...opaque options}.
type GroupConfig struct {
	Provider string              `json:"provider"`
	Models   []string            `json:"models"`
	BaseURL  string              `json:"base_url,omitempty"`
	APIKey   string              `json:"api_key,omitempty"`
	Options  jsoniter.RawMessage `json:"options,omitempty"`
}

// Factory builds one Client per configured model for a given provider.
type Factory interface {
	Create(cfg GroupConfig) ([]Client, error)
}

var providerRegistry = map[string]Factory{}

// RegisterProvider is called from each provider subpackage's init(), mirroring
// the blank-import self-registration idiom the rest of the stack already uses.
func RegisterProvider(name string, factory Factory) {
	providerRegistry[name] = factory
}

func GetProviderFactory(name string) (Factory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
