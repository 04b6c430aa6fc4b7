package toolsurface

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestExecContext(t *testing.T, memoriesDir string) *ExecContext {
	t.Helper()
	return &ExecContext{
		MemoriesDir: memoriesDir,
		Turn:        NewTurnState(),
	}
}

func TestSafePathRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	cases := []string{"../outside.txt", "a/../../escape.txt", "/etc/passwd", "", "a/../../../x"}
	for _, c := range cases {
		if _, err := safePath(root, c); err == nil {
			t.Errorf("safePath(%q) = nil error, want rejection", c)
		}
	}
}

func TestSafePathAllowsNestedRelative(t *testing.T) {
	root := t.TempDir()
	full, err := safePath(root, "notes/today.md")
	if err != nil {
		t.Fatalf("safePath: %v", err)
	}
	want := filepath.Join(root, "notes/today.md")
	if full != want {
		t.Errorf("safePath = %q, want %q", full, want)
	}
}

func TestCreateMemoryFailsIfExists(t *testing.T) {
	root := t.TempDir()
	x := newTestExecContext(t, root)
	ctx := context.Background()

	res := createMemorySpec.Execute(ctx, x, map[string]any{"path": "a.txt", "content": "hello"})
	if res.IsError {
		t.Fatalf("first create failed: %s", res.Content)
	}
	res = createMemorySpec.Execute(ctx, x, map[string]any{"path": "a.txt", "content": "again"})
	if !res.IsError {
		t.Fatalf("second create should fail, got %+v", res)
	}
}

func TestEditMemoryRequiresPriorRead(t *testing.T) {
	root := t.TempDir()
	x := newTestExecContext(t, root)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "note.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := editMemorySpec.Execute(ctx, x, map[string]any{
		"path": "note.txt", "old_string": "hello", "new_string": "goodbye",
	})
	if !res.IsError {
		t.Fatalf("expected edit without prior read to fail")
	}
	want := "Must read_memory('note.txt') before editing"
	if res.Content != want {
		t.Errorf("error = %q, want %q", res.Content, want)
	}

	readRes := readMemorySpec.Execute(ctx, x, map[string]any{"path": "note.txt"})
	if readRes.IsError {
		t.Fatalf("read_memory failed: %s", readRes.Content)
	}

	res = editMemorySpec.Execute(ctx, x, map[string]any{
		"path": "note.txt", "old_string": "hello", "new_string": "goodbye",
	})
	if res.IsError {
		t.Fatalf("edit after read failed: %s", res.Content)
	}
	data, _ := os.ReadFile(filepath.Join(root, "note.txt"))
	if string(data) != "goodbye world" {
		t.Errorf("content = %q, want %q", data, "goodbye world")
	}
}

func TestEditMemoryRequiresUniqueMatch(t *testing.T) {
	root := t.TempDir()
	x := newTestExecContext(t, root)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "dup.txt"), []byte("foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}
	readMemorySpec.Execute(ctx, x, map[string]any{"path": "dup.txt"})

	res := editMemorySpec.Execute(ctx, x, map[string]any{
		"path": "dup.txt", "old_string": "foo", "new_string": "bar",
	})
	if !res.IsError {
		t.Fatalf("expected ambiguous match to fail")
	}
}

func TestDeleteMemoryRefusesDirectories(t *testing.T) {
	root := t.TempDir()
	x := newTestExecContext(t, root)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(root, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	res := deleteMemorySpec.Execute(ctx, x, map[string]any{"path": "subdir"})
	if !res.IsError {
		t.Fatalf("expected directory delete to be refused")
	}
}
