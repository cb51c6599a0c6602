package runexec

import (
	"context"
	"testing"

	"github.com/Strob0t/CodeForge-sub000/internal/history"
	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
	"github.com/Strob0t/CodeForge-sub000/internal/toolregistry"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{})
}

func TestApplyRunModeDenyRemovesNamedTool(t *testing.T) {
	reg := toolregistry.BuildDefault(t.TempDir())
	applyRunMode(reg, model.RunMode{DeniedTools: []string{"bash"}})
	if _, ok := reg.Get("bash"); ok {
		t.Errorf("expected bash to be unregistered")
	}
	if _, ok := reg.Get("read_file"); !ok {
		t.Errorf("expected read_file to remain registered")
	}
}

func TestApplyRunModeAllowListNarrowsToNamedTools(t *testing.T) {
	reg := toolregistry.BuildDefault(t.TempDir())
	applyRunMode(reg, model.RunMode{AllowedTools: []string{"read_file"}})
	if _, ok := reg.Get("bash"); ok {
		t.Errorf("expected bash to be removed by the allow list")
	}
	if _, ok := reg.Get("read_file"); !ok {
		t.Errorf("expected read_file to remain")
	}
}

func TestApplyRunModeNoRestrictionsLeavesRegistryUntouched(t *testing.T) {
	reg := toolregistry.BuildDefault(t.TempDir())
	before := len(reg.Names())
	applyRunMode(reg, model.RunMode{})
	if len(reg.Names()) != before {
		t.Errorf("expected registry untouched, got %d tools (was %d)", len(reg.Names()), before)
	}
}

func TestToConversationMessagesCarriesFields(t *testing.T) {
	in := []history.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleTool, Content: "out", ToolCallID: "call-1", Name: "bash"},
	}
	out := toConversationMessages(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[1].ToolCallID != "call-1" || out[1].Name != "bash" {
		t.Errorf("message 1 = %+v", out[1])
	}
}

func TestBuildInitialMessagesIncludesSystemAndUserPrompt(t *testing.T) {
	h := NewHandler(nil, nil, history.NewManager(history.Config{}, testLogger()), testLogger())
	run := model.Run{Prompt: "fix the bug", Mode: model.RunMode{PromptPrefix: "custom system prompt"}}

	messages := h.buildInitialMessages(context.Background(), run)
	if len(messages) < 2 {
		t.Fatalf("expected at least system+user messages, got %d", len(messages))
	}
	if messages[0].Role != model.RoleSystem {
		t.Errorf("expected first message to be system, got %s", messages[0].Role)
	}
	if messages[len(messages)-1].Content != "fix the bug" {
		t.Errorf("expected final message to carry the run prompt, got %q", messages[len(messages)-1].Content)
	}
}

func TestBuildInitialMessagesDefaultsSystemPromptWhenUnset(t *testing.T) {
	h := NewHandler(nil, nil, history.NewManager(history.Config{}, testLogger()), testLogger())
	run := model.Run{Prompt: "hello"}

	messages := h.buildInitialMessages(context.Background(), run)
	if messages[0].Content != defaultSystemPrompt {
		t.Errorf("expected default system prompt, got %q", messages[0].Content)
	}
}
