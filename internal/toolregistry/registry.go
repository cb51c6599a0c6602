// Package toolregistry holds the by-name dispatch table the agent loop
// executes tool calls against: built-in filesystem/shell/search tools plus
// whatever a run's MCP workbench merges in at run start.
//
// Grounded on the teacher's internal/agent/tool_registry.go (not kept in
// this tree) and its ToolRegistry (register/
// unregister/get/execute/AsLLMTools), re-targeted from that package's
// session-bound Tool interface to model.ToolResult/model.ToolDefinition so
// it satisfies agentloop.ToolExecutor directly.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

// Tool is one executable, LLM-describable capability.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, arguments map[string]any, workspace string) model.ToolResult
}

// Registry is a concurrency-safe by-name dispatch table.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool), schemas: make(map[string]*jsonschema.Schema)}
}

// Register adds or replaces a tool under its own name, compiling its JSON
// Schema once so Execute doesn't recompile it on every call. A tool whose
// schema fails to compile is still registered; its calls simply skip
// argument validation.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.schemas[t.Name()] = compileSchema(t.Schema())
}

// Unregister removes a tool, e.g. when a run's MCP server disconnects.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute dispatches a named tool call. An unknown tool name, a schema
// validation failure, or a panic inside an executor, is reported as a
// failed ToolResult rather than propagated, matching the failure semantics
// the agent loop relies on.
func (r *Registry) Execute(ctx context.Context, name string, arguments map[string]any, workspace string) (result model.ToolResult) {
	t, ok := r.Get(name)
	if !ok {
		return model.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()
	if schema != nil {
		if arguments == nil {
			arguments = map[string]any{}
		}
		if err := schema.Validate(arguments); err != nil {
			return model.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = model.ToolResult{Success: false, Error: fmt.Sprintf("tool panicked: %v", rec)}
		}
	}()
	return t.Execute(ctx, arguments, workspace)
}

// compileSchema compiles a tool's JSON Schema once at registration time.
// Validation is best-effort: a tool with no schema, or one that fails to
// compile, registers successfully and simply skips argument validation.
func compileSchema(schema map[string]any) *jsonschema.Schema {
	if len(schema) == 0 {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil
	}
	return compiled
}

// OpenAITools returns every registered tool in LLM wire format.
func (r *Registry) OpenAITools() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// Names returns the currently registered tool names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
