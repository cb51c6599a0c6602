// Package evaluation implements the evaluation.gemmas.request/result protocol
// contract. spec.md's Non-goals explicitly exclude evaluation judges, yet
// evaluation.gemmas.request/result is a named row in the subject table; the
// resolution (recorded in DESIGN.md) is to honor the wire contract while
// refusing to run any judge logic.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// StatusNotImplemented is the only status this worker ever replies with.
const StatusNotImplemented = "not_implemented"

// Request is decoded from evaluation.gemmas.request.
type Request struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
}

// Result is published on evaluation.gemmas.result.
type Result struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

// Handler replies to every evaluation.gemmas.request with a not_implemented
// result, never invoking any judge logic.
type Handler struct {
	js     jetstream.JetStream
	logger *observability.Logger
}

// NewHandler builds the evaluation passthrough handler.
func NewHandler(js jetstream.JetStream, logger *observability.Logger) *Handler {
	return &Handler{js: js, logger: logger}
}

// Handle implements bus.Handler for evaluation.gemmas.request.
func (h *Handler) Handle(ctx context.Context, msg jetstream.Msg) error {
	var req Request
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("evaluation: decode request: %w", err)
	}
	return h.publish(ctx, notImplementedResult(req))
}

// PublishErrorReply implements bus.FailSafeReplier.
func (h *Handler) PublishErrorReply(ctx context.Context, msg jetstream.Msg) error {
	var req Request
	_ = json.Unmarshal(msg.Data(), &req)
	return h.publish(ctx, notImplementedResult(req))
}

func notImplementedResult(req Request) Result {
	return Result{
		RunID:     req.RunID,
		ProjectID: req.ProjectID,
		Status:    StatusNotImplemented,
		Reason:    "evaluation judges are out of scope for this worker",
	}
}

func (h *Handler) publish(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("evaluation: marshal result: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectEvalGemmasResult, data); err != nil {
		return fmt.Errorf("evaluation: publish result: %w", err)
	}
	if h.logger != nil {
		h.logger.Info(ctx, "evaluation request acknowledged as not implemented", "run_id", result.RunID)
	}
	return nil
}
