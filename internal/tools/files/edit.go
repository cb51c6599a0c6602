package files

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

// EditFileTool replaces exactly one occurrence of old_text with new_text in
// a file, failing if the file contains zero or more than one match.
type EditFileTool struct {
	resolver Resolver
}

// NewEditFileTool creates an edit_file tool scoped to the workspace.
func NewEditFileTool(workspace string) *EditFileTool {
	return &EditFileTool{resolver: Resolver{Root: workspace}}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Replace exactly one occurrence of old_text with new_text in a file."
}

func (t *EditFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the workspace.",
			},
			"old_text": map[string]any{
				"type":        "string",
				"description": "Exact text to replace. Must match exactly once.",
			},
			"new_text": map[string]any{
				"type":        "string",
				"description": "Replacement text.",
			},
		},
		"required": []string{"file_path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(_ context.Context, arguments map[string]any, _ string) model.ToolResult {
	path, _ := arguments["file_path"].(string)
	if strings.TrimSpace(path) == "" {
		return model.ToolResult{Success: false, Error: "file_path is required"}
	}
	oldText, _ := arguments["old_text"].(string)
	if oldText == "" {
		return model.ToolResult{Success: false, Error: "old_text is required"}
	}
	newText, _ := arguments["new_text"].(string)

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return model.ToolResult{Success: false, Error: err.Error()}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("read file: %v", err)}
	}
	content := string(data)

	count := strings.Count(content, oldText)
	if count == 0 {
		return model.ToolResult{Success: false, Error: "old_text not found"}
	}
	if count > 1 {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("old_text is not unique: found %d occurrences", count)}
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("write file: %v", err)}
	}

	return model.ToolResult{Success: true, Output: fmt.Sprintf("replaced 1 occurrence in %s", path)}
}
