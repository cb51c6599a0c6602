package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/CodeForge-sub000/internal/agentloop"
	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

const (
	minExpandedQueries = 1
	maxExpandedQueries = 20

	defaultSubagentRetries = 3
	defaultSubagentDelay   = time.Second
)

// SubagentResult is the Retrieval Sub-Agent's reply: the fused, deduplicated,
// optionally-reranked hits plus the bookkeeping an orchestrator reports
// alongside them.
type SubagentResult struct {
	Results         []SearchResult
	ExpandedQueries []string
	TotalCandidates int
	TokensIn        int
	TokensOut       int
	CostUSD         float64
}

// Subagent wraps HybridRetriever with LLM-driven query expansion and
// reranking. New component (no teacher equivalent); grounded on
// the teacher's internal/agent/providers/base.go (not kept in this tree)
// and its linear-backoff Retry for the
// expand/rerank calls' retry semantics, and on
// original_source/workers/codeforge/retrieval.py's caller for the
// max_queries clamp and fallback behavior.
type Subagent struct {
	retriever  *HybridRetriever
	llm        agentloop.LLMClient
	maxRetries int
	retryDelay time.Duration
}

// NewSubagent creates a retrieval sub-agent over retriever using llm for
// query expansion and reranking.
func NewSubagent(retriever *HybridRetriever, llm agentloop.LLMClient) *Subagent {
	return &Subagent{
		retriever: retriever, llm: llm,
		maxRetries: defaultSubagentRetries, retryDelay: defaultSubagentDelay,
	}
}

// Search expands query into up to maxQueries search queries (the original
// plus LLM paraphrases), searches each in parallel, deduplicates by
// (filepath, start_line) keeping the highest-scored hit, optionally reranks
// via the LLM, and returns the top topK results.
func (s *Subagent) Search(ctx context.Context, projectID, query string, maxQueries, topK int, rerank bool) (SubagentResult, error) {
	if maxQueries < minExpandedQueries {
		maxQueries = minExpandedQueries
	}
	if maxQueries > maxExpandedQueries {
		maxQueries = maxExpandedQueries
	}

	var result SubagentResult
	expanded, tokensIn, tokensOut, cost := s.expand(ctx, query, maxQueries)
	result.ExpandedQueries = expanded
	result.TokensIn += tokensIn
	result.TokensOut += tokensOut
	result.CostUSD += cost

	candidates := s.searchAll(ctx, projectID, expanded, topK)
	result.TotalCandidates = len(candidates)

	deduped := dedupeByLocation(candidates)

	if rerank && len(deduped) > 0 {
		ranked, tIn, tOut, rCost, err := s.rerank(ctx, query, deduped)
		result.TokensIn += tIn
		result.TokensOut += tOut
		result.CostUSD += rCost
		if err == nil {
			deduped = ranked
		} else {
			sortByScoreDesc(deduped)
		}
	} else {
		sortByScoreDesc(deduped)
	}

	if topK > 0 && len(deduped) > topK {
		deduped = deduped[:topK]
	}
	result.Results = deduped
	return result, nil
}

// expand asks the LLM for up to maxQueries-1 paraphrases (the original
// query is always included first). On empty response or LLM error, it
// falls back to [query] alone, matching retrieval.py's caller behavior.
func (s *Subagent) expand(ctx context.Context, query string, maxQueries int) (queries []string, tokensIn, tokensOut int, cost float64) {
	queries = []string{query}
	if maxQueries <= 1 || s.llm == nil {
		return queries, 0, 0, 0
	}

	prompt := fmt.Sprintf(
		"Generate up to %d alternative phrasings of this code-search query, one per line, no numbering:\n\n%s",
		maxQueries-1, query)

	var resp agentloop.ChatCompletionResponse
	err := s.retry(ctx, func() error {
		var callErr error
		resp, callErr = s.llm.ChatCompletionStream(ctx, agentloop.ChatCompletionRequest{
			Messages: []model.ConversationMessage{{Role: model.RoleUser, Content: prompt}},
		}, func(string) {})
		return callErr
	})
	if err != nil {
		return queries, 0, 0, 0
	}

	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		queries = append(queries, line)
		if len(queries) >= maxQueries {
			break
		}
	}
	return queries, resp.TokensIn, resp.TokensOut, resp.CostUSD
}

func (s *Subagent) searchAll(ctx context.Context, projectID string, queries []string, topK int) []SearchResult {
	var mu sync.Mutex
	var all []SearchResult
	var wg sync.WaitGroup

	for _, q := range queries {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			hits, err := s.retriever.Search(ctx, projectID, query, topK)
			if err != nil {
				return
			}
			mu.Lock()
			all = append(all, hits...)
			mu.Unlock()
		}(q)
	}
	wg.Wait()
	return all
}

func dedupeByLocation(results []SearchResult) []SearchResult {
	best := make(map[string]SearchResult)
	var order []string
	for _, r := range results {
		key := fmt.Sprintf("%s:%d", r.Filepath, r.StartLine)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = r
			continue
		}
		if r.Score > existing.Score {
			best[key] = r
		}
	}
	out := make([]SearchResult, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func sortByScoreDesc(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

// rerank asks the LLM for a ranked index list over candidates; unranked
// indices fill the remaining slots in their original order.
func (s *Subagent) rerank(ctx context.Context, query string, candidates []SearchResult) ([]SearchResult, int, int, float64, error) {
	prompt := buildRerankPrompt(query, candidates)

	var resp agentloop.ChatCompletionResponse
	err := s.retry(ctx, func() error {
		var callErr error
		resp, callErr = s.llm.ChatCompletionStream(ctx, agentloop.ChatCompletionRequest{
			Messages: []model.ConversationMessage{{Role: model.RoleUser, Content: prompt}},
		}, func(string) {})
		return callErr
	})
	if err != nil {
		return nil, 0, 0, 0, err
	}

	var order []int
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &order); jsonErr != nil {
		return nil, resp.TokensIn, resp.TokensOut, resp.CostUSD, jsonErr
	}

	used := make(map[int]struct{}, len(order))
	ranked := make([]SearchResult, 0, len(candidates))
	for _, idx := range order {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		if _, ok := used[idx]; ok {
			continue
		}
		used[idx] = struct{}{}
		ranked = append(ranked, candidates[idx])
	}
	for i, c := range candidates {
		if _, ok := used[i]; !ok {
			ranked = append(ranked, c)
		}
	}
	return ranked, resp.TokensIn, resp.TokensOut, resp.CostUSD, nil
}

func buildRerankPrompt(query string, candidates []SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rank these code snippets by relevance to the query %q.\n", query)
	b.WriteString("Respond with a JSON array of 0-based indices, most relevant first.\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s:%d-%d\n%s\n\n", i, c.Filepath, c.StartLine, c.EndLine, c.Content)
	}
	return b.String()
}

// retry applies linear backoff, grounded on the teacher's
// internal/agent/providers/base.go (not kept in this tree) and its
// BaseProvider.Retry.
func (s *Subagent) retry(ctx context.Context, op func() error) error {
	maxRetries := s.maxRetries
	if maxRetries <= 0 {
		maxRetries = defaultSubagentRetries
	}
	delay := s.retryDelay
	if delay <= 0 {
		delay = defaultSubagentDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt >= maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}
