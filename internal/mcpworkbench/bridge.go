// Package mcpworkbench merges a run's live MCP server connections into its
// tool registry. One workbench instance is created per run from its
// model.MCPServerDef list; each remote tool is registered under the
// synthetic name `mcp__{server_id}__{tool_name}` and forwarded through the
// connecting Manager, which routes by server id.
//
// Grounded on the teacher's internal/mcp/bridge.go (not kept in this
// tree) and its ToolBridge/safeToolName/
// sanitizeToolPart/toolNameHash family: the sanitize-then-hash-dedupe
// algorithm is kept, but the separator and cap are re-specified to the
// registry's stated double-underscore format instead of the teacher's
// single-underscore `mcp_{server}_{tool}` shape, and the bridge is
// re-targeted from the teacher's agent.Tool/json.RawMessage contract to
// toolregistry.Tool/model.ToolResult.
package mcpworkbench

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/Strob0t/CodeForge-sub000/internal/mcp"
	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/toolregistry"
)

const maxSyntheticNameLen = 64

// ToolCaller is the subset of *mcp.Manager the bridge needs.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*mcp.ToolCallResult, error)
}

// Bridge exposes one remote MCP tool as a toolregistry.Tool.
type Bridge struct {
	caller     ToolCaller
	serverID   string
	tool       *mcp.MCPTool
	syntheticName string
}

// BuildConfig translates a run's MCP server definitions into the manager
// configuration the teacher's stdio/SSE transport layer expects.
func BuildConfig(defs []model.MCPServerDef) *mcp.Config {
	servers := make([]*mcp.ServerConfig, 0, len(defs))
	for _, def := range defs {
		transport := mcp.TransportStdio
		if def.Transport == "sse" || def.Transport == "http" {
			transport = mcp.TransportHTTP
		}
		servers = append(servers, &mcp.ServerConfig{
			ID:        def.ServerID,
			Name:      def.ServerID,
			Transport: transport,
			Command:   def.Command,
			Args:      def.Args,
			Env:       def.Env,
			URL:       def.URL,
			AutoStart: true,
		})
	}
	return &mcp.Config{Enabled: len(servers) > 0, Servers: servers}
}

// MergeTools registers every tool currently known to mgr into reg, one
// bridge per (server id, tool name) pair, returning the synthetic names
// assigned so the caller can log or unregister them at run teardown.
func MergeTools(reg *toolregistry.Registry, mgr *mcp.Manager) []string {
	used := make(map[string]struct{})
	var registered []string
	for serverID, tools := range mgr.AllTools() {
		for _, tool := range tools {
			name := syntheticToolName(serverID, tool.Name, used)
			reg.Register(&Bridge{caller: mgr, serverID: serverID, tool: tool, syntheticName: name})
			registered = append(registered, name)
		}
	}
	return registered
}

func (b *Bridge) Name() string { return b.syntheticName }

func (b *Bridge) Description() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", b.serverID, b.tool.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.serverID, b.tool.Name, desc)
}

func (b *Bridge) Schema() map[string]any {
	if len(b.tool.InputSchema) == 0 {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(b.tool.InputSchema, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	return schema
}

func (b *Bridge) Execute(ctx context.Context, arguments map[string]any, _ string) model.ToolResult {
	result, err := b.caller.CallTool(ctx, b.serverID, b.tool.Name, arguments)
	if err != nil {
		return model.ToolResult{Success: false, Error: err.Error()}
	}
	content, isError := formatToolCallResult(result)
	if isError {
		return model.ToolResult{Success: false, Error: content}
	}
	return model.ToolResult{Success: true, Output: content}
}

func formatToolCallResult(result *mcp.ToolCallResult) (string, bool) {
	if result == nil {
		return "", true
	}
	var b strings.Builder
	for i, block := range result.Content {
		if i > 0 {
			b.WriteString("\n")
		}
		switch block.Type {
		case "text":
			b.WriteString(block.Text)
		case "image":
			b.WriteString(fmt.Sprintf("[image: %s]", block.MimeType))
		case "resource":
			b.WriteString(fmt.Sprintf("[resource: %s]", block.MimeType))
		default:
			b.WriteString(block.Text)
		}
	}
	return b.String(), result.IsError
}

// syntheticToolName builds the registry's mcp__{server_id}__{tool_name}
// name, sanitizing each part and falling back to a content hash when the
// result is over-length or collides with an already-registered name.
func syntheticToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp__" + sanitizeNamePart(serverID) + "__" + sanitizeNamePart(toolName)
	name := base
	if len(name) > maxSyntheticNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}
	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeNamePart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func nameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "__" + nameHash(serverID, toolName)
	if maxSyntheticNameLen <= len(suffix) {
		return suffix[len(suffix)-maxSyntheticNameLen:]
	}
	trimLen := maxSyntheticNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "__" + nameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxSyntheticNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}
