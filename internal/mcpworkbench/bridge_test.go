package mcpworkbench

import (
	"context"
	"strings"
	"testing"

	"github.com/Strob0t/CodeForge-sub000/internal/mcp"
)

func TestSyntheticToolNameUsesDoubleUnderscoreFormat(t *testing.T) {
	used := map[string]struct{}{}
	name := syntheticToolName("github", "create_issue", used)
	if name != "mcp__github__create_issue" {
		t.Errorf("name = %q, want mcp__github__create_issue", name)
	}
}

func TestSyntheticToolNameDedupesOnCollision(t *testing.T) {
	used := map[string]struct{}{}
	first := syntheticToolName("srv", "Tool.Name", used)
	second := syntheticToolName("srv", "tool_name", used) // sanitizes to the same base
	if first == second {
		t.Fatal("expected distinct names for colliding sanitized bases")
	}
}

func TestSyntheticToolNameRespectsLengthCap(t *testing.T) {
	used := map[string]struct{}{}
	name := syntheticToolName(strings.Repeat("server", 10), strings.Repeat("tool", 10), used)
	if len(name) > maxSyntheticNameLen {
		t.Errorf("name length = %d, want <= %d", len(name), maxSyntheticNameLen)
	}
}

type fakeCaller struct {
	result *mcp.ToolCallResult
	err    error
}

func (f *fakeCaller) CallTool(_ context.Context, _, _ string, _ map[string]any) (*mcp.ToolCallResult, error) {
	return f.result, f.err
}

func TestBridgeExecuteFormatsTextContent(t *testing.T) {
	caller := &fakeCaller{result: &mcp.ToolCallResult{
		Content: []mcp.ToolResultContent{{Type: "text", Text: "ok"}},
	}}
	b := &Bridge{caller: caller, serverID: "srv", tool: &mcp.MCPTool{Name: "do_thing"}, syntheticName: "mcp__srv__do_thing"}

	result := b.Execute(context.Background(), nil, "")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.Output != "ok" {
		t.Errorf("output = %q, want %q", result.Output, "ok")
	}
}

func TestBridgeExecutePropagatesRemoteError(t *testing.T) {
	caller := &fakeCaller{result: &mcp.ToolCallResult{IsError: true, Content: []mcp.ToolResultContent{{Type: "text", Text: "boom"}}}}
	b := &Bridge{caller: caller, serverID: "srv", tool: &mcp.MCPTool{Name: "do_thing"}, syntheticName: "mcp__srv__do_thing"}

	result := b.Execute(context.Background(), nil, "")
	if result.Success {
		t.Fatal("expected failure when the MCP server reports isError")
	}
}
