package qualitygate

import (
	"context"
	"strings"
	"testing"

	"github.com/Strob0t/CodeForge-sub000/internal/tools/exec"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return &Handler{manager: exec.NewManager(t.TempDir()), timeout: DefaultTimeout}
}

func TestRunPassesOnZeroExit(t *testing.T) {
	h := newTestHandler(t)
	result := h.run(context.Background(), Request{RunID: "r1", ProjectID: "p1", Command: "echo ok"})
	if !result.Passed {
		t.Fatalf("expected passed result, got %+v", result)
	}
	if !strings.Contains(result.Stdout, "ok") {
		t.Errorf("stdout = %q, want it to contain ok", result.Stdout)
	}
}

func TestRunFailsOnNonZeroExit(t *testing.T) {
	h := newTestHandler(t)
	result := h.run(context.Background(), Request{RunID: "r1", ProjectID: "p1", Command: "exit 1"})
	if result.Passed {
		t.Fatalf("expected failed result, got %+v", result)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	h := newTestHandler(t)
	result := h.run(context.Background(), Request{RunID: "r1", Command: ""})
	if result.Passed || result.Error == "" {
		t.Errorf("expected a rejection error, got %+v", result)
	}
}

func TestHeadAndTailTruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("a", outputCap*2)
	got := headAndTail(long, outputCap)
	if len(got) >= len(long) {
		t.Errorf("expected truncated output, got len %d", len(got))
	}
	if !strings.Contains(got, "characters omitted") {
		t.Errorf("expected omission marker in %q", got[:50])
	}
}
