package toolregistry

import (
	"github.com/Strob0t/CodeForge-sub000/internal/tools/exec"
	"github.com/Strob0t/CodeForge-sub000/internal/tools/files"
	"github.com/Strob0t/CodeForge-sub000/internal/tools/search"
)

// BuildDefault returns a registry pre-loaded with every built-in tool named
// in the tool registry's contract, scoped to one run's workspace. A run's
// MCP workbench merges additional tools into the same registry afterward
// via mcpworkbench.MergeTools.
func BuildDefault(workspace string) *Registry {
	reg := New()
	reg.Register(files.NewReadFileTool(workspace))
	reg.Register(files.NewWriteFileTool(workspace))
	reg.Register(files.NewEditFileTool(workspace))
	reg.Register(exec.NewBashTool(exec.NewManager(workspace)))
	reg.Register(search.NewSearchFilesTool(workspace))
	reg.Register(search.NewGlobFilesTool(workspace))
	reg.Register(search.NewListDirectoryTool(workspace))
	return reg
}
