package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/tools/files"
)

const maxGlobMatches = 500

// GlobFilesTool enumerates workspace files matching a glob pattern.
type GlobFilesTool struct {
	resolver  files.Resolver
	workspace string
}

// NewGlobFilesTool creates a glob_files tool scoped to the workspace.
func NewGlobFilesTool(workspace string) *GlobFilesTool {
	return &GlobFilesTool{resolver: files.Resolver{Root: workspace}, workspace: workspace}
}

func (t *GlobFilesTool) Name() string { return "glob_files" }

func (t *GlobFilesTool) Description() string {
	return "Enumerate workspace files matching a glob pattern (e.g. \"**/*.go\")."
}

func (t *GlobFilesTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern, relative to the workspace root.",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobFilesTool) Execute(_ context.Context, arguments map[string]any, _ string) model.ToolResult {
	pattern, _ := arguments["pattern"].(string)
	if strings.TrimSpace(pattern) == "" {
		return model.ToolResult{Success: false, Error: "pattern is required"}
	}

	root, err := t.resolver.Resolve(".")
	if err != nil {
		return model.ToolResult{Success: false, Error: err.Error()}
	}

	var matches []string
	truncated := false
	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if shouldSkipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !globMatch(pattern, rel) {
			return nil
		}
		if len(matches) >= maxGlobMatches {
			truncated = true
			return nil
		}
		matches = append(matches, rel)
		return nil
	})
	if walkErr != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("walk workspace: %v", walkErr)}
	}

	output := strings.Join(matches, "\n")
	if truncated {
		output += fmt.Sprintf("\n... (truncated at %d paths)", maxGlobMatches)
	}
	return model.ToolResult{Success: true, Output: output}
}

// globMatch supports a leading "**/" wildcard (match any depth) on top of
// filepath.Match's single-segment matching, since Go's stdlib glob has no
// doublestar support.
func globMatch(pattern, rel string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[len("**/"):]
		if ok, _ := filepath.Match(suffix, filepath.Base(rel)); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		// Try matching the suffix against every path segment depth.
		segments := strings.Split(rel, "/")
		for i := range segments {
			candidate := strings.Join(segments[i:], "/")
			if ok, _ := filepath.Match(suffix, candidate); ok {
				return true
			}
		}
		return false
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}
