// Package signalstore tracks research "signals" the scan loop discovers
// and rotates through: opportunities progressing DETECTED -> RESEARCHING
// -> VALIDATED -> ACTIONABLE -> BUILDING -> SHIPPED (or DROPPED). Grounded
// on original_source/src/chatbot/signals.rs's SignalsStore, simplified
// from its shared-dir multi-bot layout (this spec carries no multi-tenant
// isolation) to a single {data_dir}/signals.json file.
package signalstore

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Status is a signal's position in the research pipeline.
type Status string

const (
	Detected    Status = "detected"
	Researching Status = "researching"
	Validated   Status = "validated"
	Actionable  Status = "actionable"
	Building    Status = "building"
	Shipped     Status = "shipped"
	Dropped     Status = "dropped"
)

// Signal is one tracked opportunity.
type Signal struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     Status   `json:"status"`
	Notes      string   `json:"notes"`
	Tags       []string `json:"tags,omitempty"`
	DetectedAt string   `json:"detected_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// Store is a thread-safe, disk-backed collection of Signals. The scan
// loop's focus-topic rotation lives in the Scheduler (config-supplied,
// spec.md's "configured list of focus topics"); Store owns only the
// signals themselves and the text injected as the scan's tracked-signals
// snapshot.
type Store struct {
	mu   sync.Mutex
	path string

	signals []Signal
}

// Load reads path if it exists, otherwise starts from an empty store; a
// file that fails to parse is returned as an error.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signalstore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.signals); err != nil {
		return nil, fmt.Errorf("signalstore: parse %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.signals, "", "  ")
	if err != nil {
		return fmt.Errorf("signalstore: marshal: %w", err)
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// Add creates a new Detected signal and persists it.
func (s *Store) Add(title, notes string, tags []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	id := fmt.Sprintf("sig_%d", time.Now().UTC().UnixMilli())
	s.signals = append(s.signals, Signal{
		ID:         id,
		Title:      title,
		Status:     Detected,
		Notes:      notes,
		Tags:       tags,
		DetectedAt: now,
		UpdatedAt:  now,
	})
	return id, s.save()
}

// UpdateStatus sets a signal's status (and, if notes is non-empty, its
// notes), returning false if id is not found.
func (s *Store) UpdateStatus(id string, status Status, notes string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.signals {
		if s.signals[i].ID != id {
			continue
		}
		s.signals[i].Status = status
		if notes != "" {
			s.signals[i].Notes = notes
		}
		s.signals[i].UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return true, s.save()
	}
	return false, nil
}

// Active returns every signal not yet Shipped or Dropped.
func (s *Store) Active() []Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if sig.Status != Shipped && sig.Status != Dropped {
			active = append(active, sig)
		}
	}
	return active
}

// FormatForPrompt renders the active signals as the scan loop's tracked-
// signals snapshot (scheduler.Scheduler's signals callback).
func (s *Store) FormatForPrompt() string {
	active := s.Active()
	if len(active) == 0 {
		return "No signals being tracked yet."
	}

	var b strings.Builder
	b.WriteString("Currently tracked signals:\n")
	for _, sig := range active {
		tags := "none"
		if len(sig.Tags) > 0 {
			tags = strings.Join(sig.Tags, ", ")
		}
		fmt.Fprintf(&b, "- %s [%s] id=%s tags=%s\n", sig.Title, sig.Status, sig.ID, tags)
	}
	return b.String()
}
