// Package config loads claudima's JSON configuration and hosts the
// shared, lock-guarded trusted-user set that the dispatch engine and the
// trust-management tools mutate together.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var tokenPattern = regexp.MustCompile(`^\d+:.+$`)

// Config is the business-level application configuration, read once at
// startup from the file named by the CLI's positional argument (default
// "claudima.json"). TrustedDMUsers is also written back by the
// add_trusted_user/remove_trusted_user tools.
type Config struct {
	OwnerIDs            []int64          `json:"owner_ids"`
	TelegramBotToken    string           `json:"telegram_bot_token"`
	TrustedDMUsers      map[int64]string `json:"trusted_dm_users,omitempty"`
	PeerBots            []int64          `json:"peer_bots,omitempty"`
	AllowedGroups       []int64          `json:"allowed_groups,omitempty"`
	PrimaryChatID       int64            `json:"primary_chat_id,omitempty"`
	TrustedChannels     []int64          `json:"trusted_channels,omitempty"`
	SpamPatterns        []string         `json:"spam_patterns,omitempty"`
	SafePatterns        []string         `json:"safe_patterns,omitempty"`
	MaxStrikes          int              `json:"max_strikes,omitempty"`
	DryRun              bool             `json:"dry_run,omitempty"`
	LogChatID           int64            `json:"log_chat_id,omitempty"`
	DataDir             string           `json:"data_dir,omitempty"`
	WhisperModelPath    string           `json:"whisper_model_path,omitempty"`
	TTSEndpoint         string           `json:"tts_endpoint,omitempty"`
	GeminiAPIKey        string           `json:"gemini_api_key,omitempty"`
	OpenRouterAPIKey    string           `json:"openrouter_api_key,omitempty"`
	Personality         string           `json:"personality,omitempty"`
	ScanIntervalMinutes int              `json:"scan_interval_minutes,omitempty"`
	FocusTopics         []string         `json:"focus_topics,omitempty"`
	ReasonerModel       string           `json:"reasoner_model,omitempty"`

	// ClassifierLLM configures the pluggable moderation-classifier backend
	// (one of the "ollama"/"openai"/"gemini" provider groups), reusing the
	// same GroupConfig shape the llmprovider registry understands.
	ClassifierLLM jsoniter.RawMessage `json:"classifier_llm,omitempty"`

	// configPath remembers where this Config was loaded from so trust-set
	// writers can persist changes back to the same file.
	configPath string `json:"-"`
}

// DefaultSpamPatterns / DefaultSafePatterns seed the prefilter when the
// config omits them.
func DefaultSpamPatterns() []string {
	return []string{
		`(?i)crypto.*profit`,
		`(?i)t\.me/\S+`,
		`(?i)forex.*signal`,
		`(?i)get rich quick`,
	}
}

func DefaultSafePatterns() []string {
	return []string{`(?i)^(hi|hello|hey)\b`}
}

// DefaultFocusTopics seeds the scan loop's topic rotation when the config
// omits focus_topics, matching the original's SignalsStore::load defaults.
func DefaultFocusTopics() []string {
	return []string{
		"AI agents and automation",
		"Developer tools and APIs",
		"Crypto/DeFi opportunities",
		"SaaS micro-products",
		"Content and media tools",
	}
}

// Validate ensures mandatory fields are present and well-formed.
func (c *Config) Validate() error {
	if len(c.OwnerIDs) == 0 {
		return fmt.Errorf("config: 'owner_ids' must be a non-empty array")
	}
	if !tokenPattern.MatchString(c.TelegramBotToken) {
		return fmt.Errorf("config: 'telegram_bot_token' must match the form '\\d+:.+'")
	}
	if c.MaxStrikes <= 0 {
		c.MaxStrikes = 3
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ReasonerModel == "" {
		c.ReasonerModel = "sonnet"
	}
	if len(c.SpamPatterns) == 0 {
		c.SpamPatterns = DefaultSpamPatterns()
	}
	if len(c.SafePatterns) == 0 {
		c.SafePatterns = DefaultSafePatterns()
	}
	if len(c.FocusTopics) == 0 {
		c.FocusTopics = DefaultFocusTopics()
	}
	if c.TrustedDMUsers == nil {
		c.TrustedDMUsers = make(map[int64]string)
	}
	return nil
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "claudima.json"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file '%s' not found; please create one", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.configPath = path
	return &cfg, nil
}

// TrustSet is the shared, lock-guarded container for the owner and
// trusted-DM ids, per the spec's "Global mutable trust set" design note:
// a single container shared by reference between config and engine, all
// reads/writes through a reader-writer lock, writers snapshot-then-persist
// rather than holding the lock across disk I/O.
type TrustSet struct {
	mu         sync.RWMutex
	ownerIDs   map[int64]struct{}
	trustedDM  map[int64]string
	configPath string
}

// NewTrustSet builds a TrustSet from a loaded Config.
func NewTrustSet(cfg *Config) *TrustSet {
	owners := make(map[int64]struct{}, len(cfg.OwnerIDs))
	for _, id := range cfg.OwnerIDs {
		owners[id] = struct{}{}
	}
	trusted := make(map[int64]string, len(cfg.TrustedDMUsers))
	for id, name := range cfg.TrustedDMUsers {
		trusted[id] = name
	}
	return &TrustSet{ownerIDs: owners, trustedDM: trusted, configPath: cfg.configPath}
}

// IsOwner reports whether userID is one of the configured owners.
func (t *TrustSet) IsOwner(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.ownerIDs[userID]
	return ok
}

// IsTrusted reports whether userID is an owner or an explicitly trusted DM user.
func (t *TrustSet) IsTrusted(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.ownerIDs[userID]; ok {
		return true
	}
	_, ok := t.trustedDM[userID]
	return ok
}

// snapshot clones the trusted-DM map under the read lock and releases it
// before any disk I/O happens, per the spec's concurrency note.
func (t *TrustSet) snapshot() map[int64]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]string, len(t.trustedDM))
	for k, v := range t.trustedDM {
		out[k] = v
	}
	return out
}

// AddTrustedUser adds userID (with an optional display name) to the
// trusted set and persists the change, preserving all other config
// fields. On write failure the in-memory change is rolled back.
func (t *TrustSet) AddTrustedUser(userID int64, displayName string) error {
	t.mu.Lock()
	prev, existed := t.trustedDM[userID]
	t.trustedDM[userID] = displayName
	t.mu.Unlock()

	if err := t.persist(); err != nil {
		t.mu.Lock()
		if existed {
			t.trustedDM[userID] = prev
		} else {
			delete(t.trustedDM, userID)
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// RemoveTrustedUser removes userID from the trusted set and persists the change.
func (t *TrustSet) RemoveTrustedUser(userID int64) error {
	t.mu.Lock()
	prev, existed := t.trustedDM[userID]
	delete(t.trustedDM, userID)
	t.mu.Unlock()

	if err := t.persist(); err != nil {
		if existed {
			t.mu.Lock()
			t.trustedDM[userID] = prev
			t.mu.Unlock()
		}
		return err
	}
	return nil
}

// persist rewrites the config file with an updated trusted_dm_users field,
// preserving every other top-level field exactly as read.
func (t *TrustSet) persist() error {
	if t.configPath == "" {
		return fmt.Errorf("trust set has no backing config file")
	}
	raw, err := os.ReadFile(t.configPath)
	if err != nil {
		return fmt.Errorf("reload config before write: %w", err)
	}
	var doc map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config before write: %w", err)
	}

	trusted := t.snapshot()
	encoded, err := json.Marshal(trusted)
	if err != nil {
		return err
	}
	doc["trusted_dm_users"] = encoded

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := t.configPath + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, t.configPath)
}
