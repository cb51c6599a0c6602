package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/memory/embeddings"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// StoreRequest is decoded from memory.store, grounded on spec.md §3's
// Memory data model and §6's agent_memories columns.
type StoreRequest struct {
	TenantID   string         `json:"tenant_id"`
	ProjectID  string         `json:"project_id"`
	AgentID    string         `json:"agent_id"`
	RunID      string         `json:"run_id"`
	Content    string         `json:"content"`
	Kind       string         `json:"kind"`
	Importance float32        `json:"importance"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RecallRequest is decoded from memory.recall.
type RecallRequest struct {
	RequestID string `json:"request_id"`
	ProjectID string `json:"project_id"`
	AgentID   string `json:"agent_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// RecallResult is published on memory.recall.result.
type RecallResult struct {
	RequestID string        `json:"request_id"`
	ProjectID string        `json:"project_id"`
	Memories  []AgentMemory `json:"memories"`
	Error     string        `json:"error,omitempty"`
}

// Handler wires the Memory Store's request handlers onto a Store,
// optionally embedding memory content on store for future semantic recall.
type Handler struct {
	js       jetstream.JetStream
	store    Store
	embedder embeddings.Provider
	logger   *observability.Logger
}

// NewHandler builds a memory store/recall handler. embedder may be nil, in
// which case memories are stored without an embedding vector.
func NewHandler(js jetstream.JetStream, store Store, embedder embeddings.Provider, logger *observability.Logger) *Handler {
	return &Handler{js: js, store: store, embedder: embedder, logger: logger}
}

// HandleStore implements bus.Handler for the async memory.store subject —
// there is no paired result subject, so failures are only logged.
func (h *Handler) HandleStore(ctx context.Context, msg jetstream.Msg) error {
	var req StoreRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("memory: decode store request: %w", err)
	}
	return h.handleStoreRequest(ctx, req)
}

// handleStoreRequest holds the decoded-request logic, kept separate from
// HandleStore's jetstream.Msg decoding so it can be unit tested without a
// fake message.
func (h *Handler) handleStoreRequest(ctx context.Context, req StoreRequest) error {
	if req.Content == "" {
		return fmt.Errorf("memory: content is required")
	}
	if req.Kind == "" {
		req.Kind = KindObservation
	}

	var embedding []float32
	if h.embedder != nil {
		vec, err := h.embedder.Embed(ctx, req.Content)
		if err != nil {
			if h.logger != nil {
				h.logger.Warn(ctx, "memory embedding failed, storing without one", "error", err)
			}
		} else {
			embedding = vec
		}
	}

	record := AgentMemory{
		ID:         uuid.NewString(),
		TenantID:   req.TenantID,
		ProjectID:  req.ProjectID,
		AgentID:    req.AgentID,
		RunID:      req.RunID,
		Content:    req.Content,
		Kind:       req.Kind,
		Importance: clampImportance(req.Importance),
		Embedding:  embedding,
		Metadata:   req.Metadata,
		CreatedAt:  time.Now(),
	}
	if err := h.store.StoreMemory(ctx, record); err != nil {
		return fmt.Errorf("memory: store: %w", err)
	}
	if h.logger != nil {
		h.logger.Info(ctx, "memory stored", "project_id", req.ProjectID, "kind", record.Kind)
	}
	return nil
}

// HandleRecall implements bus.Handler for the request-reply memory.recall
// subject, always publishing a RecallResult (even on failure) so the
// waiter never blocks forever.
func (h *Handler) HandleRecall(ctx context.Context, msg jetstream.Msg) error {
	var req RecallRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("memory: decode recall request: %w", err)
	}

	memories, err := h.store.RecallMemories(ctx, req.ProjectID, req.AgentID, req.Limit)
	result := RecallResult{RequestID: req.RequestID, ProjectID: req.ProjectID, Memories: memories}
	if err != nil {
		result.Error = err.Error()
	}
	return h.publishRecallResult(ctx, result)
}

// PublishErrorReply implements bus.FailSafeReplier for the memory.recall
// subscription.
func (h *Handler) PublishErrorReply(ctx context.Context, msg jetstream.Msg) error {
	var req RecallRequest
	_ = json.Unmarshal(msg.Data(), &req)
	return h.publishRecallResult(ctx, RecallResult{RequestID: req.RequestID, ProjectID: req.ProjectID, Error: "internal worker error"})
}

func (h *Handler) publishRecallResult(ctx context.Context, result RecallResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("memory: marshal recall result: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectMemoryRecallResult, data); err != nil {
		return fmt.Errorf("memory: publish recall result: %w", err)
	}
	return nil
}

func clampImportance(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
