// Package search implements the workbench's path-sandboxed directory
// enumeration and content-search tools. It reuses files.Resolver for the
// same workspace-escape guard the filesystem tools apply.
package search

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/tools/files"
)

const maxSearchMatches = 100

// SearchFilesTool runs a regex over workspace file contents, optionally
// restricted to files matching an include glob.
type SearchFilesTool struct {
	resolver  files.Resolver
	workspace string
}

// NewSearchFilesTool creates a search_files tool scoped to the workspace.
func NewSearchFilesTool(workspace string) *SearchFilesTool {
	return &SearchFilesTool{resolver: files.Resolver{Root: workspace}, workspace: workspace}
}

func (t *SearchFilesTool) Name() string { return "search_files" }

func (t *SearchFilesTool) Description() string {
	return "Search file contents in the workspace with a regular expression, optionally restricted to files matching a glob."
}

func (t *SearchFilesTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"include": map[string]any{
				"type":        "string",
				"description": "Optional glob restricting which files are searched (e.g. \"*.go\").",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search from, relative to the workspace (default: workspace root).",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *SearchFilesTool) Execute(_ context.Context, arguments map[string]any, _ string) model.ToolResult {
	pattern, _ := arguments["pattern"].(string)
	if strings.TrimSpace(pattern) == "" {
		return model.ToolResult{Success: false, Error: "pattern is required"}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("invalid pattern: %v", err)}
	}
	include, _ := arguments["include"].(string)
	startPath, _ := arguments["path"].(string)
	if startPath == "" {
		startPath = "."
	}

	root, err := t.resolver.Resolve(startPath)
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
		if include != "" {
			if ok, _ := filepath.Match(include, info.Name()); !ok {
				return nil
			}
		}
		if len(matches) >= maxSearchMatches {
			truncated = true
			return nil
		}
		grepFile(path, re, &matches, maxSearchMatches)
		return nil
	})
	if walkErr != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("walk workspace: %v", walkErr)}
	}

	rel := relTo(t.workspace, matches)
	output := strings.Join(rel, "\n")
	if truncated || len(matches) >= maxSearchMatches {
		output += fmt.Sprintf("\n... (truncated at %d matches)", maxSearchMatches)
	}
	return model.ToolResult{Success: true, Output: output}
}

func grepFile(path string, re *regexp.Regexp, matches *[]string, max int) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(*matches) >= max {
			return
		}
		line := scanner.Text()
		if re.MatchString(line) {
			*matches = append(*matches, fmt.Sprintf("%s:%d:%s", path, lineNo, line))
		}
	}
}

func shouldSkipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", ".venv", "__pycache__":
		return true
	}
	return false
}

func relTo(workspace string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		parts := strings.SplitN(p, ":", 2)
		abs := parts[0]
		rest := ""
		if len(parts) > 1 {
			rest = ":" + parts[1]
		}
		if rel, err := filepath.Rel(workspace, abs); err == nil {
			out[i] = rel + rest
		} else {
			out[i] = p
		}
	}
	return out
}
