package memory

import (
	"context"
	"testing"
)

type fakeMemoryStore struct {
	stored []AgentMemory
	recall []AgentMemory
}

func (f *fakeMemoryStore) StoreMemory(ctx context.Context, m AgentMemory) error {
	f.stored = append(f.stored, m)
	return nil
}

func (f *fakeMemoryStore) RecallMemories(ctx context.Context, projectID, agentID string, limit int) ([]AgentMemory, error) {
	return f.recall, nil
}

func (f *fakeMemoryStore) Close() error { return nil }

func TestHandleStoreDefaultsKindAndClampsImportance(t *testing.T) {
	store := &fakeMemoryStore{}
	h := NewHandler(nil, store, nil, nil)

	req := StoreRequest{ProjectID: "proj-1", Content: "noted", Importance: 5}
	if err := h.handleStoreRequest(context.Background(), req); err != nil {
		t.Fatalf("handle store: %v", err)
	}
	if len(store.stored) != 1 {
		t.Fatalf("expected one stored memory, got %d", len(store.stored))
	}
	got := store.stored[0]
	if got.Kind != KindObservation {
		t.Errorf("kind = %q, want %q", got.Kind, KindObservation)
	}
	if got.Importance != 1 {
		t.Errorf("importance = %v, want clamped to 1", got.Importance)
	}
}

func TestHandleStoreRejectsEmptyContent(t *testing.T) {
	store := &fakeMemoryStore{}
	h := NewHandler(nil, store, nil, nil)

	err := h.handleStoreRequest(context.Background(), StoreRequest{ProjectID: "proj-1"})
	if err == nil {
		t.Fatalf("expected an error for empty content")
	}
	if len(store.stored) != 0 {
		t.Errorf("expected nothing stored")
	}
}

func TestClampImportance(t *testing.T) {
	cases := map[float32]float32{-1: 0, 0.5: 0.5, 2: 1}
	for in, want := range cases {
		if got := clampImportance(in); got != want {
			t.Errorf("clampImportance(%v) = %v, want %v", in, got, want)
		}
	}
}
