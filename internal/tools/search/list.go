package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/tools/files"
)

const (
	maxListEntries    = 500
	defaultListDepth  = 3
)

// ListDirectoryTool enumerates directory entries, optionally recursing to a
// bounded depth.
type ListDirectoryTool struct {
	resolver files.Resolver
}

// NewListDirectoryTool creates a list_directory tool scoped to the workspace.
func NewListDirectoryTool(workspace string) *ListDirectoryTool {
	return &ListDirectoryTool{resolver: files.Resolver{Root: workspace}}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "Enumerate directory entries, prefixed with [DIR]/[FILE], with optional recursion up to depth 3."
}

func (t *ListDirectoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list, relative to the workspace (default: workspace root).",
			},
			"recursive": map[string]any{
				"type":        "boolean",
				"description": "Recurse into subdirectories up to depth 3 (default: false).",
			},
		},
	}
}

func (t *ListDirectoryTool) Execute(_ context.Context, arguments map[string]any, _ string) model.ToolResult {
	path, _ := arguments["path"].(string)
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	recursive, _ := arguments["recursive"].(bool)

	root, err := t.resolver.Resolve(path)
	if err != nil {
		return model.ToolResult{Success: false, Error: err.Error()}
	}
	info, err := os.Stat(root)
	if err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("stat directory: %v", err)}
	}
	if !info.IsDir() {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("%s is not a directory", path)}
	}

	maxDepth := 0
	if recursive {
		maxDepth = defaultListDepth
	}

	var entries []string
	truncated := false
	if err := listDir(root, root, 0, maxDepth, &entries, &truncated); err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("list directory: %v", err)}
	}

	output := strings.Join(entries, "\n")
	if truncated {
		output += fmt.Sprintf("\n... (truncated at %d entries)", maxListEntries)
	}
	return model.ToolResult{Success: true, Output: output}
}

func listDir(root, dir string, depth, maxDepth int, entries *[]string, truncated *bool) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

	for _, item := range items {
		if len(*entries) >= maxListEntries {
			*truncated = true
			return nil
		}
		full := filepath.Join(dir, item.Name())
		rel, _ := filepath.Rel(root, full)
		rel = filepath.ToSlash(rel)
		if item.IsDir() {
			if shouldSkipDir(item.Name()) {
				continue
			}
			*entries = append(*entries, fmt.Sprintf("[DIR] %s", rel))
			if depth < maxDepth {
				if err := listDir(root, full, depth+1, maxDepth, entries, truncated); err != nil {
					return err
				}
			}
		} else {
			*entries = append(*entries, fmt.Sprintf("[FILE] %s", rel))
		}
	}
	return nil
}
