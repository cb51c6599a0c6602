package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

const (
	defaultBashTimeout = 120 * time.Second
	bashOutputCap       = 50000
)

// bashArguments mirrors the bash tool's parameters; its JSON Schema is
// reflected from this struct with invopop/jsonschema rather than
// hand-maintained as a parallel map literal.
type bashArguments struct {
	Command        string `json:"command" jsonschema:"required,description=Shell command to execute."`
	Cwd            string `json:"cwd,omitempty" jsonschema:"description=Working directory, relative to the workspace."`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"minimum=1,description=Timeout in seconds (default: 120). The process is killed on expiry."`
}

var bashSchema = reflectToolSchema(&bashArguments{})

// reflectToolSchema reflects a Go struct's JSON Schema and decodes it back
// into the plain map[string]any shape the tool registry's Tool interface
// expects, so tool parameter schemas can be kept in sync with their Go
// argument structs instead of duplicated by hand.
func reflectToolSchema(v any) map[string]any {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]any{"type": "object"}
	}
	return decoded
}

// BashTool runs a single shell command to completion. The teacher's
// background-job tool (ProcessTool) is dropped and no tool calls
// Manager.startBackground: the registry names no async-process tool, so
// this is a synchronous wrapper over Manager.RunCommand with a default
// kill-on-timeout.
type BashTool struct {
	manager *Manager
}

// NewBashTool creates a bash tool backed by a workspace-scoped Manager.
func NewBashTool(manager *Manager) *BashTool {
	return &BashTool{manager: manager}
}

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Run a shell command in the workspace and return its combined output."
}

func (t *BashTool) Schema() map[string]any {
	return bashSchema
}

func (t *BashTool) Execute(ctx context.Context, arguments map[string]any, _ string) model.ToolResult {
	if t.manager == nil {
		return model.ToolResult{Success: false, Error: "exec manager unavailable"}
	}
	command, _ := arguments["command"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return model.ToolResult{Success: false, Error: "command is required"}
	}
	cwd, _ := arguments["cwd"].(string)

	timeout := defaultBashTimeout
	if secs := intArg(arguments, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	result, err := t.manager.RunCommand(ctx, command, cwd, nil, "", timeout)
	if err != nil {
		return model.ToolResult{Success: false, Error: err.Error()}
	}

	var b strings.Builder
	b.WriteString(result.Stdout)
	if result.Stderr != "" {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(result.Stderr)
	}
	output := headAndTail(b.String(), bashOutputCap)

	if result.ExitCode != 0 {
		msg := result.Error
		if msg == "" {
			msg = fmt.Sprintf("command exited with code %d", result.ExitCode)
		}
		return model.ToolResult{Success: false, Output: output, Error: msg}
	}
	return model.ToolResult{Success: true, Output: output}
}

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

// headAndTail keeps the first and last half of the cap when output exceeds
// it, with a marker noting how many characters were omitted.
func headAndTail(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	half := cap / 2
	omitted := len(s) - cap
	return fmt.Sprintf("%s\n... (%d characters omitted) ...\n%s", s[:half], omitted, s[len(s)-half:])
}
