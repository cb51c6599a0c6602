package repomap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// Request is decoded from repomap.generate.request.
type Request struct {
	RequestID     string   `json:"request_id"`
	ProjectID     string   `json:"project_id"`
	WorkspacePath string   `json:"workspace_path"`
	ActiveFiles   []string `json:"active_files,omitempty"`
	TokenBudget   int      `json:"token_budget,omitempty"`
}

// Response is published on repomap.generate.result.
type Response struct {
	RequestID   string   `json:"request_id"`
	ProjectID   string   `json:"project_id"`
	MapText     string   `json:"map_text"`
	TokenCount  int      `json:"token_count"`
	FileCount   int      `json:"file_count"`
	SymbolCount int      `json:"symbol_count"`
	Languages   []string `json:"languages"`
	Error       string   `json:"error,omitempty"`
}

// Handler serves repomap.generate.request over the bus.
type Handler struct {
	js     jetstream.JetStream
	logger *observability.Logger
}

// NewHandler builds a repo map request handler.
func NewHandler(js jetstream.JetStream, logger *observability.Logger) *Handler {
	return &Handler{js: js, logger: logger}
}

// Handle implements bus.Handler for repomap.generate.request. This subject
// is plain request/reply (not in the fail-safe set per spec.md §4.1), so a
// decode failure is simply returned to the consumer's retry/DLQ policy.
func (h *Handler) Handle(ctx context.Context, msg jetstream.Msg) error {
	var req Request
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("repomap: decode request: %w", err)
	}

	result := NewGenerator(req.TokenBudget).Generate(req.WorkspacePath, req.ActiveFiles)
	resp := Response{
		RequestID:   req.RequestID,
		ProjectID:   req.ProjectID,
		MapText:     result.MapText,
		TokenCount:  result.TokenCount,
		FileCount:   result.FileCount,
		SymbolCount: result.SymbolCount,
		Languages:   result.Languages,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("repomap: marshal response: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectRepoMapResult, data); err != nil {
		return fmt.Errorf("repomap: publish response: %w", err)
	}
	if h.logger != nil {
		h.logger.Info(ctx, "repo map generated", "project_id", req.ProjectID, "files", result.FileCount, "tokens", result.TokenCount)
	}
	return nil
}
