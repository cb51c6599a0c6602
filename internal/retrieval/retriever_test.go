package retrieval

import (
	"context"
	"strings"
	"testing"
)

// fakeEmbedder embeds text as a bag-of-words vector over a fixed
// vocabulary, giving deterministic, meaningfully different cosine
// similarities without calling a real embeddings API.
type fakeEmbedder struct {
	vocab []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vocab: []string{"json", "yaml", "auth", "token", "parse", "config"}}
}

func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return len(f.vocab) }
func (f *fakeEmbedder) MaxBatchSize() int { return 100 }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(f.vocab))
		for j, term := range f.vocab {
			if strings.Contains(lower, term) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

func TestBuildIndexAndSearchReturnsBothRankings(t *testing.T) {
	root := t.TempDir()
	writeRetrievalFile(t, root, "json_parser.go", "package parser\n\nfunc ParseJSON() {}\n")
	writeRetrievalFile(t, root, "auth.go", "package auth\n\nfunc CheckToken() {}\n")

	r := NewHybridRetriever(newFakeEmbedder(), nil, nil)
	status := r.BuildIndex(context.Background(), "proj", root, "fake-model")
	if status.Status != "ready" {
		t.Fatalf("build status = %+v", status)
	}
	if status.ChunkCount == 0 {
		t.Fatalf("expected non-zero chunk count")
	}

	results, err := r.Search(context.Background(), "proj", "parse json", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].BM25Rank == 0 || results[0].SemanticRank == 0 {
		t.Errorf("expected non-zero rank fields, got %+v", results[0])
	}
}

func TestSearchUnknownProjectReturnsEmpty(t *testing.T) {
	r := NewHybridRetriever(newFakeEmbedder(), nil, nil)
	results, err := r.Search(context.Background(), "missing", "anything", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for unknown project, got %+v", results)
	}
}

func TestBuildIndexIsIncrementalOnUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeRetrievalFile(t, root, "a.go", "package a\n\nfunc A() {}\n")
	writeRetrievalFile(t, root, "b.go", "package b\n\nfunc B() {}\n")

	hashStore, err := NewHashStore("")
	if err != nil {
		t.Fatalf("new hash store: %v", err)
	}
	defer hashStore.Close()

	r := NewHybridRetriever(newFakeEmbedder(), hashStore, nil)
	ctx := context.Background()
	first := r.BuildIndex(ctx, "proj", root, "fake-model")
	if first.Incremental {
		t.Errorf("expected first build to be a full build, got incremental=true")
	}

	writeRetrievalFile(t, root, "a.go", "package a\n\nfunc AChanged() {}\n")
	second := r.BuildIndex(ctx, "proj", root, "fake-model")
	if !second.Incremental {
		t.Fatalf("expected second build to be incremental, got %+v", second)
	}
	if second.FilesChanged != 1 || second.FilesUnchanged != 1 {
		t.Errorf("expected 1 changed + 1 unchanged file, got %+v", second)
	}
}

func TestBuildIndexEmptyWorkspace(t *testing.T) {
	root := t.TempDir()
	r := NewHybridRetriever(newFakeEmbedder(), nil, nil)
	status := r.BuildIndex(context.Background(), "proj", root, "fake-model")
	if status.Status != "empty" {
		t.Errorf("status = %+v, want empty", status)
	}
}

func TestDropIndexRemovesProject(t *testing.T) {
	root := t.TempDir()
	writeRetrievalFile(t, root, "a.go", "package a\n\nfunc A() {}\n")

	r := NewHybridRetriever(newFakeEmbedder(), nil, nil)
	r.BuildIndex(context.Background(), "proj", root, "fake-model")

	if !r.DropIndex("proj") {
		t.Errorf("expected DropIndex to report an existing index")
	}
	if r.DropIndex("proj") {
		t.Errorf("expected second DropIndex call to report nothing to remove")
	}
	if status := r.GetIndexStatus("proj"); status.Status != "not_found" {
		t.Errorf("status after drop = %+v", status)
	}
}
