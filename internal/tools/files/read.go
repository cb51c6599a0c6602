// Package files implements the workbench's path-sandboxed filesystem
// tools. Resolver is reused verbatim from the teacher's
// internal/tools/files/resolver.go; read/write/edit are re-specified to the
// line-oriented contract named in the tool registry's read_file/write_file/
// edit_file entries.
package files

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

const defaultReadLineLimit = 2000

// ReadFileTool returns file contents annotated with 1-based line numbers,
// with optional offset/limit over those line numbers.
type ReadFileTool struct {
	resolver Resolver
}

// NewReadFileTool creates a read_file tool scoped to the workspace.
func NewReadFileTool(workspace string) *ReadFileTool {
	return &ReadFileTool{resolver: Resolver{Root: workspace}}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Return file contents with line numbers, optionally starting at a 1-based offset and limited to a number of lines."
}

func (t *ReadFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the workspace.",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "1-based line number to start reading from (default: 1).",
				"minimum":     1,
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to return (default: 2000).",
				"minimum":     1,
			},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, arguments map[string]any, _ string) model.ToolResult {
	path, _ := arguments["file_path"].(string)
	if strings.TrimSpace(path) == "" {
		return model.ToolResult{Success: false, Error: "file_path is required"}
	}
	offset := intArg(arguments, "offset", 1)
	if offset < 1 {
		offset = 1
	}
	limit := intArg(arguments, "limit", defaultReadLineLimit)
	if limit < 1 {
		limit = defaultReadLineLimit
	}

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return model.ToolResult{Success: false, Error: err.Error()}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("read file: %v", err)}
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	start := offset - 1
	if start >= len(lines) {
		return model.ToolResult{Success: true, Output: ""}
	}
	end := start + limit
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return model.ToolResult{Success: true, Output: b.String()}
}

// intArg reads an integer tool argument that may have arrived as a
// float64 (the common case once it round-trips through JSON) or an int.
func intArg(arguments map[string]any, key string, fallback int) int {
	v, ok := arguments[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return fallback
}
