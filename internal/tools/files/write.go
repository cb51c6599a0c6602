package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

// WriteFileTool creates or overwrites a file, creating parent directories
// as needed.
type WriteFileTool struct {
	resolver Resolver
}

// NewWriteFileTool creates a write_file tool scoped to the workspace.
func NewWriteFileTool(workspace string) *WriteFileTool {
	return &WriteFileTool{resolver: Resolver{Root: workspace}}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Create or overwrite a file with the given content, creating parent directories as needed."
}

func (t *WriteFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the workspace.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full content to write.",
			},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteFileTool) Execute(_ context.Context, arguments map[string]any, _ string) model.ToolResult {
	path, _ := arguments["file_path"].(string)
	if strings.TrimSpace(path) == "" {
		return model.ToolResult{Success: false, Error: "file_path is required"}
	}
	content, _ := arguments["content"].(string)

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return model.ToolResult{Success: false, Error: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("create parent directories: %v", err)}
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("write file: %v", err)}
	}

	return model.ToolResult{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}
}
