package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, root string, name, content string) {
	t.Helper()
	full := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestSearchFilesFindsMatchingLine(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.go", "package a\nfunc Foo() {}\n")

	tool := NewSearchFilesTool(root)
	result := tool.Execute(context.Background(), map[string]any{"pattern": "func Foo"}, root)
	if !result.Success {
		t.Fatalf("search failed: %s", result.Error)
	}
	if !strings.Contains(result.Output, "a.go:2:") {
		t.Errorf("expected a.go:2: match, got %q", result.Output)
	}
}

func TestGlobFilesMatchesDoublestar(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pkg/sub/file.go", "package sub\n")
	writeFixture(t, root, "README.md", "# readme\n")

	tool := NewGlobFilesTool(root)
	result := tool.Execute(context.Background(), map[string]any{"pattern": "**/*.go"}, root)
	if !result.Success {
		t.Fatalf("glob failed: %s", result.Error)
	}
	if !strings.Contains(result.Output, "pkg/sub/file.go") {
		t.Errorf("expected pkg/sub/file.go in output, got %q", result.Output)
	}
	if strings.Contains(result.Output, "README.md") {
		t.Errorf("did not expect README.md in .go glob output")
	}
}

func TestListDirectoryNonRecursiveOmitsNestedEntries(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "top.txt", "x")
	writeFixture(t, root, "sub/nested.txt", "y")

	tool := NewListDirectoryTool(root)
	result := tool.Execute(context.Background(), map[string]any{}, root)
	if !result.Success {
		t.Fatalf("list failed: %s", result.Error)
	}
	if strings.Contains(result.Output, "nested.txt") {
		t.Errorf("did not expect nested.txt without recursive=true, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "[DIR] sub") {
		t.Errorf("expected [DIR] sub entry, got %q", result.Output)
	}
}

func TestListDirectoryRecursiveIncludesNestedEntries(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "sub/nested.txt", "y")

	tool := NewListDirectoryTool(root)
	result := tool.Execute(context.Background(), map[string]any{"recursive": true}, root)
	if !result.Success {
		t.Fatalf("list failed: %s", result.Error)
	}
	if !strings.Contains(result.Output, "[FILE] sub/nested.txt") {
		t.Errorf("expected nested.txt in recursive output, got %q", result.Output)
	}
}
