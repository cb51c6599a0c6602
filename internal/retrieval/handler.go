package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CodeForge-sub000/internal/bus"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// IndexRequest is decoded from retrieval.index.request.
type IndexRequest struct {
	RequestID      string `json:"request_id"`
	ProjectID      string `json:"project_id"`
	WorkspacePath  string `json:"workspace_path"`
	EmbeddingModel string `json:"embedding_model"`
}

// IndexResponse is published on retrieval.index.result.
type IndexResponse struct {
	RequestID      string `json:"request_id"`
	ProjectID      string `json:"project_id"`
	Status         string `json:"status"`
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingModel string `json:"embedding_model"`
	Incremental    bool   `json:"incremental"`
	FilesChanged   int    `json:"files_changed"`
	FilesUnchanged int    `json:"files_unchanged"`
	Error          string `json:"error,omitempty"`
}

// SearchRequest is decoded from retrieval.search.request.
type SearchRequest struct {
	RequestID string `json:"request_id"`
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

// SearchResponse is published on retrieval.search.result.
type SearchResponse struct {
	RequestID string         `json:"request_id"`
	ProjectID string         `json:"project_id"`
	Results   []SearchResult `json:"results"`
	Error     string         `json:"error,omitempty"`
}

// SubagentRequest is decoded from retrieval.subagent.request.
type SubagentRequest struct {
	RequestID  string `json:"request_id"`
	ProjectID  string `json:"project_id"`
	Query      string `json:"query"`
	MaxQueries int    `json:"max_queries"`
	TopK       int    `json:"top_k"`
	Rerank     bool   `json:"rerank"`
}

// SubagentResponse is published on retrieval.subagent.result.
type SubagentResponse struct {
	RequestID       string         `json:"request_id"`
	ProjectID       string         `json:"project_id"`
	Results         []SearchResult `json:"results"`
	ExpandedQueries []string       `json:"expanded_queries"`
	TotalCandidates int            `json:"total_candidates"`
	TokensIn        int            `json:"tokens_in"`
	TokensOut       int            `json:"tokens_out"`
	CostUSD         float64        `json:"cost_usd"`
	Error           string         `json:"error,omitempty"`
}

// Handler serves retrieval.index.request, the fail-safe
// retrieval.search.request, and the fail-safe retrieval.subagent.request,
// wrapping the already-complete HybridRetriever and Subagent.
type Handler struct {
	js        jetstream.JetStream
	retriever *HybridRetriever
	subagent  *Subagent
	logger    *observability.Logger
}

// NewHandler builds a retrieval request handler. subagent may be nil if no
// LLM client is configured, in which case retrieval.subagent.request always
// replies with an error.
func NewHandler(js jetstream.JetStream, retriever *HybridRetriever, subagent *Subagent, logger *observability.Logger) *Handler {
	return &Handler{js: js, retriever: retriever, subagent: subagent, logger: logger}
}

// HandleIndex implements bus.Handler for retrieval.index.request.
func (h *Handler) HandleIndex(ctx context.Context, msg jetstream.Msg) error {
	var req IndexRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("retrieval: decode index request: %w", err)
	}

	status := h.retriever.BuildIndex(ctx, req.ProjectID, req.WorkspacePath, req.EmbeddingModel)
	resp := IndexResponse{
		RequestID: req.RequestID, ProjectID: req.ProjectID, Status: status.Status,
		FileCount: status.FileCount, ChunkCount: status.ChunkCount, EmbeddingModel: status.EmbeddingModel,
		Incremental: status.Incremental, FilesChanged: status.FilesChanged, FilesUnchanged: status.FilesUnchanged,
		Error: status.Error,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("retrieval: marshal index response: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectRetrievalIndexResult, data); err != nil {
		return fmt.Errorf("retrieval: publish index response: %w", err)
	}
	return nil
}

// HandleSearch implements bus.Handler for the fail-safe
// retrieval.search.request subject.
func (h *Handler) HandleSearch(ctx context.Context, msg jetstream.Msg) error {
	var req SearchRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("retrieval: decode search request: %w", err)
	}

	results, err := h.retriever.Search(ctx, req.ProjectID, req.Query, req.TopK)
	resp := SearchResponse{RequestID: req.RequestID, ProjectID: req.ProjectID, Results: results}
	if err != nil {
		resp.Error = err.Error()
	}
	return h.publishSearchResponse(ctx, resp)
}

// PublishErrorReply implements bus.FailSafeReplier for retrieval.search.request.
func (h *Handler) PublishErrorReply(ctx context.Context, msg jetstream.Msg) error {
	var req SearchRequest
	_ = json.Unmarshal(msg.Data(), &req)
	return h.publishSearchResponse(ctx, SearchResponse{RequestID: req.RequestID, ProjectID: req.ProjectID, Error: "internal worker error"})
}

func (h *Handler) publishSearchResponse(ctx context.Context, resp SearchResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("retrieval: marshal search response: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectRetrievalSearchResult, data); err != nil {
		return fmt.Errorf("retrieval: publish search response: %w", err)
	}
	return nil
}

// HandleSubagent implements bus.Handler for the fail-safe
// retrieval.subagent.request subject.
func (h *Handler) HandleSubagent(ctx context.Context, msg jetstream.Msg) error {
	var req SubagentRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return fmt.Errorf("retrieval: decode subagent request: %w", err)
	}
	return h.publishSubagentResponse(ctx, req, h.runSubagent(ctx, req))
}

// PublishSubagentErrorReply implements bus.FailSafeReplier for
// retrieval.subagent.request.
func (h *Handler) PublishSubagentErrorReply(ctx context.Context, msg jetstream.Msg) error {
	var req SubagentRequest
	_ = json.Unmarshal(msg.Data(), &req)
	return h.publishSubagentResponse(ctx, req, SubagentResponse{Error: "internal worker error"})
}

func (h *Handler) runSubagent(ctx context.Context, req SubagentRequest) SubagentResponse {
	if h.subagent == nil {
		return SubagentResponse{Error: "retrieval subagent is not configured"}
	}
	result, err := h.subagent.Search(ctx, req.ProjectID, req.Query, req.MaxQueries, req.TopK, req.Rerank)
	resp := SubagentResponse{
		Results: result.Results, ExpandedQueries: result.ExpandedQueries,
		TotalCandidates: result.TotalCandidates, TokensIn: result.TokensIn,
		TokensOut: result.TokensOut, CostUSD: result.CostUSD,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// SubagentFailSafe returns a bus.FailSafeReplier bound to
// retrieval.subagent.request's reply, distinct from Handler's own
// PublishErrorReply (which answers retrieval.search.request) since a single
// Subscription only wires one FailSafeReplier per subject.
func (h *Handler) SubagentFailSafe() subagentFailSafe {
	return subagentFailSafe{h: h}
}

type subagentFailSafe struct{ h *Handler }

func (s subagentFailSafe) PublishErrorReply(ctx context.Context, msg jetstream.Msg) error {
	return s.h.PublishSubagentErrorReply(ctx, msg)
}

func (h *Handler) publishSubagentResponse(ctx context.Context, req SubagentRequest, resp SubagentResponse) error {
	resp.RequestID = req.RequestID
	resp.ProjectID = req.ProjectID
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("retrieval: marshal subagent response: %w", err)
	}
	if _, err := h.js.Publish(ctx, bus.SubjectSubagentSearchResult, data); err != nil {
		return fmt.Errorf("retrieval: publish subagent response: %w", err)
	}
	return nil
}
