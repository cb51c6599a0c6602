// Package handoff implements the minimal handoff.request -> handoff.execute
// pipeline named in spec.md's subject table. The handoff target (another
// agent runtime) is out of this worker's scope per spec.md §1, so the
// handler's only job is to validate the envelope and forward it.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// Request is decoded from handoff.request.
type Request struct {
	RunID       string         `json:"run_id"`
	ProjectID   string         `json:"project_id"`
	FromAgentID string         `json:"from_agent_id"`
	ToAgentID   string         `json:"to_agent_id"`
	Reason      string         `json:"reason"`
	Context     map[string]any `json:"context,omitempty"`
}

// ExecuteMessage is published on handoff.execute once the request passes
// validation.
type ExecuteMessage struct {
	RunID       string         `json:"run_id"`
	ProjectID   string         `json:"project_id"`
	FromAgentID string         `json:"from_agent_id"`
	ToAgentID   string         `json:"to_agent_id"`
	Reason      string         `json:"reason"`
	Context     map[string]any `json:"context,omitempty"`
}

// Handler forwards validated handoff requests onto handoff.execute.
type Handler struct {
	js     jetstream.JetStream
	logger *observability.Logger
}

// NewHandler builds a handoff forwarder.
func NewHandler(js jetstream.JetStream, logger *observability.Logger) *Handler {
	return &Handler{js: js, logger: logger}
}

// Handle implements bus.Handler for handoff.request.
func (h *Handler) Handle(ctx context.Context, msg jetstream.Msg) error {
	var req Request
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("handoff: decode request: %w", err)
	}
	if err := validate(req); err != nil {
		return err
	}

	data, err := json.Marshal(toExecuteMessage(req))
	if err != nil {
		return fmt.Errorf("handoff: marshal execute message: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectHandoffExecute, data); err != nil {
		return fmt.Errorf("handoff: publish execute message: %w", err)
	}
	if h.logger != nil {
		h.logger.Info(ctx, "handoff forwarded", "run_id", req.RunID, "from", req.FromAgentID, "to", req.ToAgentID)
	}
	return nil
}

func toExecuteMessage(req Request) ExecuteMessage {
	return ExecuteMessage{
		RunID: req.RunID, ProjectID: req.ProjectID,
		FromAgentID: req.FromAgentID, ToAgentID: req.ToAgentID,
		Reason: req.Reason, Context: req.Context,
	}
}

func validate(req Request) error {
	if req.RunID == "" {
		return fmt.Errorf("handoff: run_id is required")
	}
	if req.ToAgentID == "" {
		return fmt.Errorf("handoff: to_agent_id is required")
	}
	return nil
}
