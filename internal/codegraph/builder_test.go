package codegraph

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGraphFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBuildGraphExtractsDefinitionsAndImports(t *testing.T) {
	root := t.TempDir()
	writeGraphFile(t, root, "widget.go", `package main

import "fmt"

func Widget() { fmt.Println("w") }
`)

	nodes, edges, languages := BuildGraph("proj", root)

	if len(languages) != 1 || languages[0] != "go" {
		t.Errorf("languages = %v", languages)
	}

	var foundModule, foundWidget bool
	for _, n := range nodes {
		if n.SymbolName == "__module__" && n.Filepath == "widget.go" {
			foundModule = true
		}
		if n.SymbolName == "Widget" && n.Kind == "function" {
			foundWidget = true
		}
	}
	if !foundModule || !foundWidget {
		t.Fatalf("expected module and Widget nodes, got %+v", nodes)
	}

	var foundImport bool
	for _, e := range edges {
		if e.Kind == "imports" && e.TargetID == "proj:__import__:fmt" {
			foundImport = true
		}
	}
	if !foundImport {
		t.Errorf("expected an imports edge to fmt, got %+v", edges)
	}
}

func TestBuildGraphCreatesCrossFileCallEdges(t *testing.T) {
	root := t.TempDir()
	writeGraphFile(t, root, "a.go", `package main

func Alpha() {}
`)
	writeGraphFile(t, root, "b.go", `package main

func Beta() {}
`)

	nodes, edges, _ := BuildGraph("proj", root)
	_ = nodes

	foundAlphaToBeta := false
	for _, e := range edges {
		if e.Kind == "calls" && e.SourceID == "proj:a.go:__module__" && e.TargetID == "proj:b.go:Beta" {
			foundAlphaToBeta = true
		}
	}
	if !foundAlphaToBeta {
		t.Errorf("expected a call edge from a.go's module to Beta, got %+v", edges)
	}
}

func TestBuildReportsNodeAndEdgeCounts(t *testing.T) {
	root := t.TempDir()
	writeGraphFile(t, root, "only.go", `package main

func Only() {}
`)
	result := Build("proj", root)
	if result.Status != "ready" {
		t.Errorf("status = %q", result.Status)
	}
	if result.NodeCount == 0 {
		t.Errorf("expected non-zero node count")
	}
}

func TestBuildEmptyWorkspace(t *testing.T) {
	root := t.TempDir()
	result := Build("proj", root)
	if result.NodeCount != 0 || result.EdgeCount != 0 {
		t.Errorf("expected empty graph, got %+v", result)
	}
}
