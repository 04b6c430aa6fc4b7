package config

import (
	"encoding/json"
	"os"
	"time"
)

// SystemConfig holds engine-tuning knobs, loaded from the optional
// "system.json" alongside the business config. Every field defaults
// sanely so a missing system.json is not an error.
//
// Of these fields, DebounceMs, ReminderPollIntervalMs, MaxRetries and
// RetryDelayMs are read by the gateway wiring; the rest are loaded but
// not read by any component. The dispatch engine's tool-loop cap and
// restoration budget are its own MaxIterations (10) and
// CompactionRestoreTokens (10000) constants, and the Telegram transport
// chunks outbound text at its own 4096-character default.
type SystemConfig struct {
	MaxIterations          int    `json:"max_iterations"`
	DebounceMs             int    `json:"debounce_ms"`
	ReminderPollIntervalMs int    `json:"reminder_poll_interval_ms"`
	RestorationTokenBudget int    `json:"restoration_token_budget"`
	LLMTimeoutMs           int    `json:"llm_timeout_ms"`
	ClassifierTimeoutMs    int    `json:"classifier_timeout_ms"`
	ImageGenTimeoutMs      int    `json:"image_gen_timeout_ms"`
	TTSTimeoutMs           int    `json:"tts_timeout_ms"`
	OEmbedTimeoutMs        int    `json:"oembed_timeout_ms"`
	DownloadTimeoutMs      int    `json:"download_timeout_ms"`
	TelegramMessageLimit   int    `json:"telegram_message_limit"`
	ThinkingInitDelayMs    int    `json:"thinking_init_delay_ms"`
	MaxRetries             int    `json:"max_retries"`
	RetryDelayMs           int    `json:"retry_delay_ms"`
	LogLevel               string `json:"log_level"`
}

// DefaultSystemConfig returns the hardcoded safe defaults.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxIterations:          25,
		DebounceMs:             3000,
		ReminderPollIntervalMs: 60000,
		RestorationTokenBudget: 10000,
		LLMTimeoutMs:           600000,
		ClassifierTimeoutMs:    15000,
		ImageGenTimeoutMs:      60000,
		TTSTimeoutMs:           30000,
		OEmbedTimeoutMs:        10000,
		DownloadTimeoutMs:      10000,
		TelegramMessageLimit:   4000,
		ThinkingInitDelayMs:    500,
		MaxRetries:             3,
		RetryDelayMs:           500,
		LogLevel:               "info",
	}
}

// Debounce is the Pending Batch's quiescence window as a time.Duration.
func (s *SystemConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// ReminderPoll is the Scheduler's due-reminder poll interval.
func (s *SystemConfig) ReminderPoll() time.Duration {
	return time.Duration(s.ReminderPollIntervalMs) * time.Millisecond
}

// RetryDelay is the classifier-LLM's inter-retry pause.
func (s *SystemConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// LoadSystemConfig attempts to load path, falling back to defaults on any
// error (missing file, bad JSON) — silent fallback is deliberate, matching
// the teacher's own system.json behavior.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return DefaultSystemConfig()
	}
	return cfg
}
