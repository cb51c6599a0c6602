package toolregistry

import (
	"context"
	"testing"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

type stubTool struct {
	name   string
	result model.ToolResult
	panics bool
}

func (s *stubTool) Name() string                                      { return s.name }
func (s *stubTool) Description() string                               { return "stub" }
func (s *stubTool) Schema() map[string]any                            { return map[string]any{"type": "object"} }
func (s *stubTool) Execute(_ context.Context, _ map[string]any, _ string) model.ToolResult {
	if s.panics {
		panic("boom")
	}
	return s.result
}

func TestExecuteUnknownToolReturnsErrorResult(t *testing.T) {
	r := New()
	result := r.Execute(context.Background(), "nope", nil, "/workspace")
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if result.Error != "unknown tool: nope" {
		t.Errorf("error = %q, want %q", result.Error, "unknown tool: nope")
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	r := New()
	r.Register(&stubTool{name: "boom", panics: true})
	result := r.Execute(context.Background(), "boom", nil, "/workspace")
	if result.Success {
		t.Fatal("expected failure when tool panics")
	}
	if result.Error == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestOpenAIToolsReflectsRegisteredTools(t *testing.T) {
	r := New()
	r.Register(&stubTool{name: "a", result: model.ToolResult{Success: true}})
	r.Register(&stubTool{name: "b", result: model.ToolResult{Success: true}})
	defs := r.OpenAITools()
	if len(defs) != 2 {
		t.Fatalf("got %d tool defs, want 2", len(defs))
	}
}

func TestUnregisterRemovesTool(t *testing.T) {
	r := New()
	r.Register(&stubTool{name: "a"})
	r.Unregister("a")
	if _, ok := r.Get("a"); ok {
		t.Error("expected tool to be removed")
	}
}
