// Package model holds the canonical data types shared across the worker's
// subsystems: tasks, runs, conversation messages, tool definitions and
// results, context entries, and the context-assembly result shapes.
package model

import "time"

// Task is a unit of work handed down by the control plane.
type Task struct {
	TaskID    string         `json:"task_id"`
	ProjectID string         `json:"project_id"`
	Title     string         `json:"title"`
	Prompt    string         `json:"prompt"`
	Config    map[string]any `json:"config,omitempty"`
}

// RunMode carries the allow/deny tool sets and prompt customization for a run.
type RunMode struct {
	AllowedTools []string `json:"allowed_tools,omitempty"`
	DeniedTools  []string `json:"denied_tools,omitempty"`
	PromptPrefix string   `json:"prompt_prefix,omitempty"`
	ScenarioTag  string   `json:"scenario_tag,omitempty"`
}

// RunBounds declares the termination limits for an agent loop.
type RunBounds struct {
	MaxSteps       int     `json:"max_steps,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"`
	MaxCost        float64 `json:"max_cost,omitempty"`
}

// MCPServerDef describes one MCP server to connect for the run's workbench.
type MCPServerDef struct {
	ServerID  string            `json:"server_id"`
	Transport string            `json:"transport"` // "stdio" or "sse"
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	URL       string            `json:"url,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Run is a supervised agent-loop execution envelope.
type Run struct {
	RunID           string         `json:"run_id"`
	TaskID          string         `json:"task_id"`
	ProjectID       string         `json:"project_id"`
	AgentID         string         `json:"agent_id"`
	Prompt          string         `json:"prompt"`
	PolicyProfile   string         `json:"policy_profile"`
	Mode            RunMode        `json:"mode"`
	Bounds          RunBounds      `json:"bounds"`
	MCPServers      []MCPServerDef `json:"mcp_servers,omitempty"`
	ContextEntries  []ContextEntry `json:"context_entries,omitempty"`
	Microagents     []string       `json:"microagent_prompts,omitempty"`
	WorkspacePath   string         `json:"workspace_path"`
	RequestID       string         `json:"request_id,omitempty"`
}

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// MessageRole enumerates conversation message roles.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCallRef is a tool invocation the LLM produced.
type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON string
}

// ConversationMessage is a single entry in a run's message history.
type ConversationMessage struct {
	Role       MessageRole   `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
}

// ContextEntry is a pre-packed body of auxiliary text injected into the
// system prompt.
type ContextEntry struct {
	Kind         string `json:"kind"` // file, repomap, retrieval, graph, diagnostics, ...
	Path         string `json:"path,omitempty"`
	Content      string `json:"content"`
	TokenCount   int    `json:"token_count"`
	Priority     int    `json:"priority"`
}

// ToolDefinition describes a callable tool in LLM wire format.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolResult is the outcome of executing a tool call.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PermissionDecisionKind enumerates policy-engine verdicts.
type PermissionDecisionKind string

const (
	DecisionAllow PermissionDecisionKind = "allow"
	DecisionDeny  PermissionDecisionKind = "deny"
	DecisionAsk   PermissionDecisionKind = "ask"
)

// PermissionDecision is the policy engine's reply to a tool-call request.
type PermissionDecision struct {
	CallID   string                 `json:"call_id"`
	Decision PermissionDecisionKind `json:"decision"`
	Reason   string                 `json:"reason,omitempty"`
}

// Memory is an agent-scoped, importance-scored fact persisted across runs.
type Memory struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ProjectID  string    `json:"project_id"`
	AgentID    string    `json:"agent_id"`
	RunID      string    `json:"run_id,omitempty"`
	Content    string    `json:"content"`
	Kind       string    `json:"kind"` // observation, decision, error, insight
	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// GraphNode is a symbol definition extracted from source code.
type GraphNode struct {
	ID         string `json:"id"` // {project_id}:{filepath}:{symbol}
	ProjectID  string `json:"project_id"`
	Filepath   string `json:"filepath"`
	SymbolName string `json:"symbol_name"`
	Kind       string `json:"kind"` // function, method, class, module
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Language   string `json:"language"`
}

// GraphEdge is a directed relation between two graph nodes.
type GraphEdge struct {
	ProjectID string `json:"project_id"`
	SourceID  string `json:"source_id"`
	TargetID  string `json:"target_id"`
	Kind      string `json:"kind"` // imports, calls
}
