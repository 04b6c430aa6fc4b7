package toolsurface

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// safePath enforces the memory-tool path-safety invariant: the path must
// be relative, non-empty, contain no ".." segment, and after
// canonicalization must remain within root.
func safePath(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return "", fmt.Errorf("path must be relative")
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", fmt.Errorf("path must not contain '..' segments")
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve memories root: %w", err)
	}
	full := filepath.Join(absRoot, rel)
	if full != absRoot && !strings.HasPrefix(full, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the memories root")
	}
	return full, nil
}

func appendFile(path, line string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

var createMemorySpec = &Spec{
	Name:        "create_memory",
	Description: "Create a new scratch-memory file. Fails if the file already exists.",
	Params: map[string]ParamSchema{
		"path":    {Type: "string"},
		"content": {Type: "string"},
	},
	Required: []string{"path", "content"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		full, err := safePath(x.MemoriesDir, argString(args, "path"))
		if err != nil {
			return Errf("create_memory: %v", err)
		}
		if _, err := os.Stat(full); err == nil {
			return Errf("create_memory: %s already exists", argString(args, "path"))
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return Errf("create_memory: %v", err)
		}
		if err := os.WriteFile(full, []byte(argString(args, "content")), 0o644); err != nil {
			return Errf("create_memory: %v", err)
		}
		return Ok("")
	},
}

var readMemorySpec = &Spec{
	Name:        "read_memory",
	Description: "Read a scratch-memory file with line numbers.",
	Params:      map[string]ParamSchema{"path": {Type: "string"}},
	Required:    []string{"path"},
	IsQuery:     true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		rel := argString(args, "path")
		full, err := safePath(x.MemoriesDir, rel)
		if err != nil {
			return Errf("read_memory: %v", err)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return Errf("read_memory: %v", err)
		}

		var sb strings.Builder
		scanner := bufio.NewScanner(bytes.NewReader(data))
		n := 1
		for scanner.Scan() {
			fmt.Fprintf(&sb, "%d\t%s\n", n, scanner.Text())
			n++
		}
		x.Turn.FilesRead[rel] = true
		return Ok(sb.String())
	},
}

var editMemorySpec = &Spec{
	Name:        "edit_memory",
	Description: "Replace a unique substring in a previously-read scratch-memory file.",
	Params: map[string]ParamSchema{
		"path":       {Type: "string"},
		"old_string": {Type: "string"},
		"new_string": {Type: "string"},
	},
	Required: []string{"path", "old_string", "new_string"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		rel := argString(args, "path")
		if !x.Turn.FilesRead[rel] {
			return Errf("Must read_memory('%s') before editing", rel)
		}
		full, err := safePath(x.MemoriesDir, rel)
		if err != nil {
			return Errf("edit_memory: %v", err)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return Errf("edit_memory: %v", err)
		}
		oldStr := argString(args, "old_string")
		count := strings.Count(string(data), oldStr)
		if count != 1 {
			return Errf("edit_memory: old_string must occur exactly once, found %d", count)
		}
		updated := strings.Replace(string(data), oldStr, argString(args, "new_string"), 1)
		if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
			return Errf("edit_memory: %v", err)
		}
		return Ok("")
	},
}

var listMemoriesSpec = &Spec{
	Name:        "list_memories",
	Description: "List files under the scratch-memory root, optionally scoped to a subpath.",
	Params:      map[string]ParamSchema{"path": {Type: "string"}},
	IsQuery:     true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		rel := argString(args, "path")
		root := x.MemoriesDir
		if rel != "" {
			full, err := safePath(x.MemoriesDir, rel)
			if err != nil {
				return Errf("list_memories: %v", err)
			}
			root = full
		}

		var sb strings.Builder
		err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			relPath, _ := filepath.Rel(x.MemoriesDir, p)
			sb.WriteString(filepath.ToSlash(relPath) + "\n")
			return nil
		})
		if err != nil {
			return Ok("")
		}
		return Ok(sb.String())
	},
}

var searchMemoriesSpec = &Spec{
	Name:        "search_memories",
	Description: "Recursively grep scratch-memory files for a substring.",
	Params: map[string]ParamSchema{
		"pattern": {Type: "string"},
		"path":    {Type: "string"},
	},
	Required: []string{"pattern"},
	IsQuery:  true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		pattern := argString(args, "pattern")
		rel := argString(args, "path")
		root := x.MemoriesDir
		if rel != "" {
			full, err := safePath(x.MemoriesDir, rel)
			if err != nil {
				return Errf("search_memories: %v", err)
			}
			root = full
		}

		var sb strings.Builder
		_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil
			}
			relPath, _ := filepath.Rel(x.MemoriesDir, p)
			scanner := bufio.NewScanner(bytes.NewReader(data))
			lineNo := 1
			for scanner.Scan() {
				if strings.Contains(scanner.Text(), pattern) {
					fmt.Fprintf(&sb, "%s:%d: %s\n", filepath.ToSlash(relPath), lineNo, scanner.Text())
				}
				lineNo++
			}
			return nil
		})
		return Ok(sb.String())
	},
}

var deleteMemorySpec = &Spec{
	Name:        "delete_memory",
	Description: "Delete a scratch-memory file. Never deletes directories.",
	Params:      map[string]ParamSchema{"path": {Type: "string"}},
	Required:    []string{"path"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		full, err := safePath(x.MemoriesDir, argString(args, "path"))
		if err != nil {
			return Errf("delete_memory: %v", err)
		}
		info, err := os.Stat(full)
		if err != nil {
			return Errf("delete_memory: %v", err)
		}
		if info.IsDir() {
			return Errf("delete_memory: refusing to delete a directory")
		}
		if err := os.Remove(full); err != nil {
			return Errf("delete_memory: %v", err)
		}
		return Ok("")
	},
}
