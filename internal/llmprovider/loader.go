package llmprovider

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig parses raw (the config's classifier_llm field, a
// GroupConfig or an array of them) and builds a FallbackClient spanning
// every configured model across every listed provider group, in the
// order given — the first group is tried first, falling through to the
// next on exhausted retries.
func NewFromConfig(raw jsoniter.RawMessage, maxRetries int, retryDelay time.Duration) (Client, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("llmprovider: classifier_llm not configured")
	}

	var groups []GroupConfig
	if err := json.Unmarshal(raw, &groups); err != nil {
		// fall back to treating raw as a single group object
		var single GroupConfig
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("llmprovider: invalid classifier_llm config: %w", err)
		}
		groups = []GroupConfig{single}
	}

	var clients []Client
	for _, g := range groups {
		factory, ok := GetProviderFactory(g.Provider)
		if !ok {
			return nil, fmt.Errorf("llmprovider: unknown provider %q", g.Provider)
		}
		built, err := factory.Create(g)
		if err != nil {
			return nil, fmt.Errorf("llmprovider: provider %q: %w", g.Provider, err)
		}
		clients = append(clients, built...)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("llmprovider: classifier_llm configured no models")
	}

	return &FallbackClient{Clients: clients, MaxRetries: maxRetries, RetryDelay: retryDelay}, nil
}
