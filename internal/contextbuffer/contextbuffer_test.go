package contextbuffer

import (
	"path/filepath"
	"testing"
)

func TestAppendAndLookup(t *testing.T) {
	b := New(2)
	b.Append(Entry{ChatID: 1, MessageID: 10, Text: "hi"})
	b.Append(Entry{ChatID: 1, MessageID: 11, Text: "there"})

	if _, ok := b.Lookup(1, 10); !ok {
		t.Fatal("expected message 10 to be resident")
	}

	// exceeding capacity evicts the oldest entry
	b.Append(Entry{ChatID: 1, MessageID: 12, Text: "third"})
	if _, ok := b.Lookup(1, 10); ok {
		t.Fatal("expected message 10 to be evicted once capacity exceeded")
	}
	if _, ok := b.Lookup(1, 12); !ok {
		t.Fatal("expected message 12 to be resident")
	}
}

func TestUpdateEditsTextInPlace(t *testing.T) {
	b := New(5)
	b.Append(Entry{ChatID: 1, MessageID: 1, Text: "orig"})
	b.Update(1, 1, "edited")
	e, ok := b.Lookup(1, 1)
	if !ok || e.Text != "edited" {
		t.Fatalf("expected edited text, got %+v ok=%v", e, ok)
	}
}

func TestLast(t *testing.T) {
	b := New(5)
	if _, ok := b.Last(1); ok {
		t.Fatal("expected no last entry for empty chat")
	}
	b.Append(Entry{ChatID: 1, MessageID: 1, Text: "a"})
	b.Append(Entry{ChatID: 1, MessageID: 2, Text: "b"})
	last, ok := b.Last(1)
	if !ok || last.MessageID != 2 {
		t.Fatalf("expected last message id 2, got %+v", last)
	}
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	b := New(10)
	b.Append(Entry{ChatID: 1, MessageID: 1, Text: "a"})
	b.Append(Entry{ChatID: 2, MessageID: 5, Text: "b"})

	if err := b.Persist(path); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded, err := Load(path, 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := loaded.Lookup(1, 1); !ok {
		t.Fatal("expected chat 1 message 1 to survive round trip")
	}
	if _, ok := loaded.Lookup(2, 5); !ok {
		t.Fatal("expected chat 2 message 5 to survive round trip")
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "missing.json"), 10)
	if err != nil {
		t.Fatalf("expected no error for missing snapshot, got %v", err)
	}
	if _, ok := b.Last(1); ok {
		t.Fatal("expected empty buffer")
	}
}
