package retrieval

import (
	"context"
	"testing"
)

func TestRunSubagentWithoutSubagentConfiguredReturnsError(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil)
	resp := h.runSubagent(context.Background(), SubagentRequest{ProjectID: "proj", Query: "parse json"})
	if resp.Error == "" {
		t.Fatalf("expected an error response when no subagent is configured")
	}
}

func TestRunSubagentDelegatesToSubagent(t *testing.T) {
	retriever := buildTestRetriever(t)
	llm := &fakeSubagentLLM{expandResponse: ""}
	sub := NewSubagent(retriever, llm)
	h := NewHandler(nil, retriever, sub, nil)

	resp := h.runSubagent(context.Background(), SubagentRequest{ProjectID: "proj", Query: "parse json", TopK: 5})
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}
	if len(resp.Results) == 0 {
		t.Fatalf("expected results")
	}
}
