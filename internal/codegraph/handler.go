package codegraph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// BuildRequest is decoded from graph.build.request.
type BuildRequest struct {
	RequestID     string `json:"request_id"`
	ProjectID     string `json:"project_id"`
	WorkspacePath string `json:"workspace_path"`
}

// BuildResponse is published on graph.build.result.
type BuildResponse struct {
	RequestID string   `json:"request_id"`
	ProjectID string   `json:"project_id"`
	Status    string   `json:"status"`
	NodeCount int      `json:"node_count"`
	EdgeCount int      `json:"edge_count"`
	Languages []string `json:"languages"`
	Error     string   `json:"error,omitempty"`
}

// SearchRequest is decoded from graph.search.request.
type SearchRequest struct {
	RequestID   string   `json:"request_id"`
	ProjectID   string   `json:"project_id"`
	SeedSymbols []string `json:"seed_symbols"`
	MaxHops     int      `json:"max_hops"`
	TopK        int      `json:"top_k"`
	HopDecay    float64  `json:"hop_decay,omitempty"`
}

// SearchResponse is published on graph.search.result.
type SearchResponse struct {
	RequestID string      `json:"request_id"`
	ProjectID string      `json:"project_id"`
	Hits      []SearchHit `json:"hits"`
	Error     string      `json:"error,omitempty"`
}

// Handler serves graph.build.request and graph.search.request, persisting
// built graphs to store and searching from it.
type Handler struct {
	js       jetstream.JetStream
	store    *Store
	searcher *Searcher
	logger   *observability.Logger
}

// NewHandler builds a code graph request handler over a Postgres-backed
// Store.
func NewHandler(js jetstream.JetStream, store *Store, logger *observability.Logger) *Handler {
	return &Handler{js: js, store: store, searcher: NewSearcher(store), logger: logger}
}

// HandleBuild implements bus.Handler for graph.build.request.
func (h *Handler) HandleBuild(ctx context.Context, msg jetstream.Msg) error {
	var req BuildRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("codegraph: decode build request: %w", err)
	}

	nodes, edges, languages := BuildGraph(req.ProjectID, req.WorkspacePath)
	resp := BuildResponse{RequestID: req.RequestID, ProjectID: req.ProjectID, Languages: languages}
	if err := h.store.Replace(ctx, req.ProjectID, nodes, edges, languages); err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
	} else {
		resp.Status = "ready"
		resp.NodeCount = len(nodes)
		resp.EdgeCount = len(edges)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("codegraph: marshal build response: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectGraphBuildResult, data); err != nil {
		return fmt.Errorf("codegraph: publish build response: %w", err)
	}
	if h.logger != nil {
		h.logger.Info(ctx, "code graph built", "project_id", req.ProjectID, "nodes", resp.NodeCount, "edges", resp.EdgeCount)
	}
	return nil
}

// HandleSearch implements bus.Handler for the fail-safe graph.search.request
// subject.
func (h *Handler) HandleSearch(ctx context.Context, msg jetstream.Msg) error {
	var req SearchRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("codegraph: decode search request: %w", err)
	}

	hits, err := h.searcher.Search(ctx, req.ProjectID, req.SeedSymbols, req.MaxHops, req.TopK, req.HopDecay)
	resp := SearchResponse{RequestID: req.RequestID, ProjectID: req.ProjectID, Hits: hits}
	if err != nil {
		resp.Error = err.Error()
	}
	return h.publishSearchResponse(ctx, resp)
}

// PublishErrorReply implements bus.FailSafeReplier for graph.search.request.
func (h *Handler) PublishErrorReply(ctx context.Context, msg jetstream.Msg) error {
	var req SearchRequest
	_ = json.Unmarshal(msg.Data(), &req)
	return h.publishSearchResponse(ctx, SearchResponse{RequestID: req.RequestID, ProjectID: req.ProjectID, Error: "internal worker error"})
}

func (h *Handler) publishSearchResponse(ctx context.Context, resp SearchResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("codegraph: marshal search response: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectGraphSearchResult, data); err != nil {
		return fmt.Errorf("codegraph: publish search response: %w", err)
	}
	return nil
}
