package codegraph

import (
	"context"
	"testing"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

// fakeStore is an in-memory GraphStore for testing Searcher without Postgres.
type fakeStore struct {
	nodes map[string]model.GraphNode
	out   map[string][]model.GraphEdge
	in    map[string][]model.GraphEdge
}

func newFakeStore() *fakeStore {
	return &fakeStore{nodes: map[string]model.GraphNode{}, out: map[string][]model.GraphEdge{}, in: map[string][]model.GraphEdge{}}
}

func (f *fakeStore) addNode(n model.GraphNode) { f.nodes[n.ID] = n }

func (f *fakeStore) addEdge(e model.GraphEdge) {
	f.out[e.SourceID] = append(f.out[e.SourceID], e)
	f.in[e.TargetID] = append(f.in[e.TargetID], e)
}

func (f *fakeStore) SeedNodes(_ context.Context, _ string, symbolNames []string) ([]model.GraphNode, error) {
	var out []model.GraphNode
	want := make(map[string]struct{}, len(symbolNames))
	for _, n := range symbolNames {
		want[n] = struct{}{}
	}
	for _, n := range f.nodes {
		if _, ok := want[n.SymbolName]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) OutEdges(_ context.Context, _, nodeID string) ([]model.GraphEdge, error) {
	return f.out[nodeID], nil
}

func (f *fakeStore) InEdges(_ context.Context, _, nodeID string) ([]model.GraphEdge, error) {
	return f.in[nodeID], nil
}

func (f *fakeStore) NodeByID(_ context.Context, _, nodeID string) (*model.GraphNode, error) {
	if n, ok := f.nodes[nodeID]; ok {
		return &n, nil
	}
	return nil, nil
}

func TestSearchScoresCloserNodesHigher(t *testing.T) {
	store := newFakeStore()
	store.addNode(model.GraphNode{ID: "p:a.go:Seed", SymbolName: "Seed", Filepath: "a.go"})
	store.addNode(model.GraphNode{ID: "p:b.go:Near", SymbolName: "Near", Filepath: "b.go"})
	store.addNode(model.GraphNode{ID: "p:c.go:Far", SymbolName: "Far", Filepath: "c.go"})
	store.addEdge(model.GraphEdge{ProjectID: "p", SourceID: "p:a.go:Seed", TargetID: "p:b.go:Near", Kind: "calls"})
	store.addEdge(model.GraphEdge{ProjectID: "p", SourceID: "p:b.go:Near", TargetID: "p:c.go:Far", Kind: "calls"})

	searcher := NewSearcher(store)
	hits, err := searcher.Search(context.Background(), "p", []string{"Seed"}, 5, 10, 0.7)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].SymbolName != "Near" || hits[1].SymbolName != "Far" {
		t.Errorf("expected Near before Far, got %+v", hits)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("expected closer node to score higher: %+v", hits)
	}
}

func TestSearchRespectsMaxHops(t *testing.T) {
	store := newFakeStore()
	store.addNode(model.GraphNode{ID: "p:a.go:Seed", SymbolName: "Seed", Filepath: "a.go"})
	store.addNode(model.GraphNode{ID: "p:b.go:Near", SymbolName: "Near", Filepath: "b.go"})
	store.addNode(model.GraphNode{ID: "p:c.go:Far", SymbolName: "Far", Filepath: "c.go"})
	store.addEdge(model.GraphEdge{ProjectID: "p", SourceID: "p:a.go:Seed", TargetID: "p:b.go:Near", Kind: "calls"})
	store.addEdge(model.GraphEdge{ProjectID: "p", SourceID: "p:b.go:Near", TargetID: "p:c.go:Far", Kind: "calls"})

	searcher := NewSearcher(store)
	hits, err := searcher.Search(context.Background(), "p", []string{"Seed"}, 1, 10, 0.7)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].SymbolName != "Near" {
		t.Errorf("expected only the 1-hop neighbor, got %+v", hits)
	}
}

func TestSearchReturnsEmptyForUnknownSeed(t *testing.T) {
	store := newFakeStore()
	searcher := NewSearcher(store)
	hits, err := searcher.Search(context.Background(), "p", []string{"Ghost"}, 3, 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != nil {
		t.Errorf("expected no hits for unknown seed, got %+v", hits)
	}
}
