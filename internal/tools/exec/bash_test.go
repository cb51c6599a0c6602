package exec

import (
	"context"
	"strings"
	"testing"
)

func TestBashToolRunsCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewBashTool(mgr)

	result := tool.Execute(context.Background(), map[string]any{"command": "echo hello"}, "")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Fatalf("expected stdout in output, got %q", result.Output)
	}
}

func TestBashToolReportsNonZeroExit(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewBashTool(mgr)

	result := tool.Execute(context.Background(), map[string]any{"command": "exit 7"}, "")
	if result.Success {
		t.Fatal("expected failure for non-zero exit")
	}
}

func TestHeadAndTailTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("a", bashOutputCap+1000)
	got := headAndTail(long, bashOutputCap)
	if len(got) >= len(long) {
		t.Errorf("expected truncation, got length %d", len(got))
	}
	if !strings.Contains(got, "characters omitted") {
		t.Errorf("expected omission marker, got %q", got[:50])
	}
}
