package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolverRejectsEscape(t *testing.T) {
	root := t.TempDir()
	resolver := Resolver{Root: root}
	_, err := resolver.Resolve("../outside.txt")
	if err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestReadWriteEdit(t *testing.T) {
	root := t.TempDir()

	writeTool := NewWriteFileTool(root)
	readTool := NewReadFileTool(root)
	editTool := NewEditFileTool(root)
	ctx := context.Background()

	writeResult := writeTool.Execute(ctx, map[string]any{
		"file_path": "notes.txt",
		"content":   "hello world",
	}, root)
	if !writeResult.Success {
		t.Fatalf("write failed: %s", writeResult.Error)
	}

	readResult := readTool.Execute(ctx, map[string]any{"file_path": "notes.txt"}, root)
	if !readResult.Success {
		t.Fatalf("read failed: %s", readResult.Error)
	}
	if !strings.Contains(readResult.Output, "hello world") {
		t.Fatalf("expected content, got %s", readResult.Output)
	}
	if !strings.HasPrefix(strings.TrimLeft(readResult.Output, " "), "1\t") {
		t.Fatalf("expected a 1-based line number prefix, got %q", readResult.Output)
	}

	editResult := editTool.Execute(ctx, map[string]any{
		"file_path": "notes.txt",
		"old_text":  "world",
		"new_text":  "codeforge",
	}, root)
	if !editResult.Success {
		t.Fatalf("edit failed: %s", editResult.Error)
	}

	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "hello codeforge" {
		t.Fatalf("unexpected content: %s", string(data))
	}
}

func TestEditFileFailsOnNonUniqueMatch(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "dup.txt"), []byte("a\na\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	editTool := NewEditFileTool(root)
	result := editTool.Execute(context.Background(), map[string]any{
		"file_path": "dup.txt",
		"old_text":  "a",
		"new_text":  "b",
	}, root)
	if result.Success {
		t.Fatal("expected failure for non-unique old_text")
	}
}

func TestEditFileFailsOnMissingMatch(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	editTool := NewEditFileTool(root)
	result := editTool.Execute(context.Background(), map[string]any{
		"file_path": "f.txt",
		"old_text":  "nope",
		"new_text":  "b",
	}, root)
	if result.Success {
		t.Fatal("expected failure when old_text is absent")
	}
}
