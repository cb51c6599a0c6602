// Package qualitygate runs a bounded lint/test subprocess on behalf of a
// run and reports the result back over the bus, grounded on
// original_source/workers/codeforge/qualitygate.py (referenced by
// consumer/_quality_gate.py) and the runs.qualitygate.request/result pair
// named in spec.md §4.1.
package qualitygate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
	"github.com/Strob0t/CodeForge-sub000/internal/tools/exec"
)

// DefaultTimeout matches the "Backend subprocess" row in spec.md §5.
const DefaultTimeout = 600 * time.Second

// Request is decoded from runs.qualitygate.request.
type Request struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
	Workspace string `json:"workspace"`
	Command   string `json:"command"`
}

// Result is published on runs.qualitygate.result.
type Result struct {
	RunID      string `json:"run_id"`
	ProjectID  string `json:"project_id"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// outputCap matches internal/tools/exec's bash tool output cap, so a
// runaway lint/test command can't blow the result message past NATS's
// default max payload size.
const outputCap = 50000

// Handler runs the requested command through a workspace-scoped exec
// manager and publishes the outcome.
type Handler struct {
	js      jetstream.JetStream
	manager *exec.Manager
	timeout time.Duration
	logger  *observability.Logger
}

// NewHandler builds a quality gate handler. manager is workspace-rooted the
// same way the bash tool's internal/tools/exec.Manager is.
func NewHandler(js jetstream.JetStream, manager *exec.Manager, logger *observability.Logger) *Handler {
	return &Handler{js: js, manager: manager, timeout: DefaultTimeout, logger: logger}
}

// Handle implements bus.Handler for runs.qualitygate.request.
func (h *Handler) Handle(ctx context.Context, msg jetstream.Msg) error {
	var req Request
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("qualitygate: decode request: %w", err)
	}

	result := h.run(ctx, req)
	return h.publish(ctx, result)
}

// PublishErrorReply implements bus.FailSafeReplier so a control-plane
// waiter on runs.qualitygate.result is never left hanging when dispatch
// itself fails (panic recovery, malformed payload).
func (h *Handler) PublishErrorReply(ctx context.Context, msg jetstream.Msg) error {
	var req Request
	_ = json.Unmarshal(msg.Data(), &req)
	return h.publish(ctx, Result{RunID: req.RunID, ProjectID: req.ProjectID, Passed: false, Error: "internal worker error"})
}

func (h *Handler) run(ctx context.Context, req Request) Result {
	if req.Command == "" {
		return Result{RunID: req.RunID, ProjectID: req.ProjectID, Passed: false, Error: "command is required"}
	}

	start := time.Now()
	execResult, err := h.manager.RunCommand(ctx, req.Command, req.Workspace, nil, "", h.timeout)
	duration := time.Since(start)
	if err != nil {
		return Result{RunID: req.RunID, ProjectID: req.ProjectID, Passed: false, Error: err.Error(), DurationMS: duration.Milliseconds()}
	}

	return Result{
		RunID:      req.RunID,
		ProjectID:  req.ProjectID,
		Passed:     execResult.ExitCode == 0,
		ExitCode:   execResult.ExitCode,
		Stdout:     headAndTail(execResult.Stdout, outputCap),
		Stderr:     headAndTail(execResult.Stderr, outputCap),
		Error:      execResult.Error,
		DurationMS: duration.Milliseconds(),
	}
}

func (h *Handler) publish(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("qualitygate: marshal result: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectQualityGateResult, data); err != nil {
		return fmt.Errorf("qualitygate: publish result: %w", err)
	}
	if h.logger != nil {
		h.logger.Info(ctx, "quality gate ran", "run_id", result.RunID, "passed", result.Passed, "exit_code", result.ExitCode)
	}
	return nil
}

func headAndTail(s string, cap int) string {
	if len(s) <= cap {
		return s
	}
	half := cap / 2
	omitted := len(s) - cap
	return fmt.Sprintf("%s\n... (%d characters omitted) ...\n%s", s[:half], omitted, s[len(s)-half:])
}
