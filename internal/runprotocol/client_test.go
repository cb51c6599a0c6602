package runprotocol

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

func newTestClient() *Client {
	logger := observability.NewLogger(observability.LogConfig{})
	return NewClient(nil, "run-1", "task-1", "proj-1", logger)
}

func TestRequestToolCallDeniesImmediatelyWhenCancelled(t *testing.T) {
	c := newTestClient()
	c.cancelled.Store(true)

	decision, err := c.RequestToolCall(context.Background(), "bash", "ls", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Decision != model.DecisionDeny {
		t.Errorf("decision = %q, want deny", decision.Decision)
	}
	if decision.Reason != "run cancelled" {
		t.Errorf("reason = %q, want %q", decision.Reason, "run cancelled")
	}
	if decision.CallID != "" {
		t.Errorf("expected no call id to be minted for a cancelled run, got %q", decision.CallID)
	}
}

func TestReportToolResultUpdatesAccumulatorsRegardlessOfOutcome(t *testing.T) {
	c := newTestClient()

	// A nil jetstream.JetStream can't publish; we only assert the
	// accumulator side effects happen before the publish is attempted.
	_ = c.ReportToolResult(context.Background(), "call-1", "bash", false, "", "denied", 0.05, 10, 20, "gpt-4o")

	if c.StepCount() != 1 {
		t.Errorf("step count = %d, want 1", c.StepCount())
	}
	if got := c.TotalCost(); got != 0.05 {
		t.Errorf("total cost = %v, want 0.05", got)
	}
}

func TestStopHeartbeatReturnsAfterStartHeartbeat(t *testing.T) {
	c := newTestClient()
	c.StartHeartbeat(context.Background())

	done := make(chan struct{})
	go func() {
		c.StopHeartbeat()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StopHeartbeat did not return")
	}
}
