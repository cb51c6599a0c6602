package retrieval

import (
	"context"
	"testing"

	"github.com/Strob0t/CodeForge-sub000/internal/agentloop"
)

type fakeSubagentLLM struct {
	expandResponse string
	rerankResponse string
	calls          int
}

func (f *fakeSubagentLLM) ChatCompletionStream(ctx context.Context, req agentloop.ChatCompletionRequest, onChunk func(string)) (agentloop.ChatCompletionResponse, error) {
	f.calls++
	content := req.Messages[0].Content
	if len(content) > 0 && content[0] == 'G' { // "Generate up to ..." expand prompt
		return agentloop.ChatCompletionResponse{Content: f.expandResponse, TokensOut: 5}, nil
	}
	return agentloop.ChatCompletionResponse{Content: f.rerankResponse, TokensOut: 5}, nil
}

func buildTestRetriever(t *testing.T) *HybridRetriever {
	t.Helper()
	root := t.TempDir()
	writeRetrievalFile(t, root, "json_parser.go", "package parser\n\nfunc ParseJSON() {}\n")
	writeRetrievalFile(t, root, "auth.go", "package auth\n\nfunc CheckToken() {}\n")

	r := NewHybridRetriever(newFakeEmbedder(), nil, nil)
	if status := r.BuildIndex(context.Background(), "proj", root, "fake-model"); status.Status != "ready" {
		t.Fatalf("build status = %+v", status)
	}
	return r
}

func TestSubagentSearchExpandsQueriesAndDedupes(t *testing.T) {
	retriever := buildTestRetriever(t)
	llm := &fakeSubagentLLM{expandResponse: "parsing json documents\nauth token validation"}
	sub := NewSubagent(retriever, llm)

	result, err := sub.Search(context.Background(), "proj", "parse json", 3, 5, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.ExpandedQueries) != 3 {
		t.Fatalf("expected 3 expanded queries, got %v", result.ExpandedQueries)
	}
	seen := make(map[string]struct{})
	for _, r := range result.Results {
		key := r.Filepath
		if _, ok := seen[key]; ok {
			t.Errorf("expected deduped results, saw %s twice", key)
		}
		seen[key] = struct{}{}
	}
}

func TestSubagentSearchFallsBackWithoutLLM(t *testing.T) {
	retriever := buildTestRetriever(t)
	sub := NewSubagent(retriever, nil)

	result, err := sub.Search(context.Background(), "proj", "parse json", 10, 5, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.ExpandedQueries) != 1 || result.ExpandedQueries[0] != "parse json" {
		t.Fatalf("expected fallback to the original query alone, got %v", result.ExpandedQueries)
	}
}

func TestSubagentRerankReordersByLLMIndices(t *testing.T) {
	retriever := buildTestRetriever(t)
	llm := &fakeSubagentLLM{expandResponse: "", rerankResponse: "[1,0]"}
	sub := NewSubagent(retriever, llm)

	result, err := sub.Search(context.Background(), "proj", "parse json", 1, 5, true)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatalf("expected results")
	}

	plain, err := retriever.Search(context.Background(), "proj", "parse json", 5)
	if err != nil || len(plain) < 2 || len(result.Results) < 2 {
		t.Fatalf("expected at least two hits, plain=%+v reranked=%+v err=%v", plain, result.Results, err)
	}
	// The LLM answered [1,0], so the top two hits of the plain search swap places.
	if result.Results[0].Filepath != plain[1].Filepath || result.Results[0].StartLine != plain[1].StartLine ||
		result.Results[1].Filepath != plain[0].Filepath || result.Results[1].StartLine != plain[0].StartLine {
		t.Errorf("expected reranked order [1,0] over %+v, got %+v", plain, result.Results)
	}
}

func TestMaxQueriesClampedToTwenty(t *testing.T) {
	retriever := buildTestRetriever(t)
	var many string
	for i := 0; i < 30; i++ {
		many += "alternative phrasing\n"
	}
	llm := &fakeSubagentLLM{expandResponse: many}
	sub := NewSubagent(retriever, llm)

	result, err := sub.Search(context.Background(), "proj", "parse json", 1000, 5, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(result.ExpandedQueries) > maxExpandedQueries {
		t.Errorf("expected expansion clamped to %d, got %d", maxExpandedQueries, len(result.ExpandedQueries))
	}
}
