package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/CodeForge-sub000/internal/memory/embeddings"
	"github.com/Strob0t/CodeForge-sub000/internal/observability"
)

// IndexStatus reports a project index's build outcome or current state.
type IndexStatus struct {
	ProjectID      string
	Status         string // ready, empty, error, not_found
	FileCount      int
	ChunkCount     int
	EmbeddingModel string
	Error          string
	Incremental    bool
	FilesChanged   int
	FilesUnchanged int
}

// SearchResult is a single hybrid-search hit with both rankings preserved.
type SearchResult struct {
	Filepath     string
	StartLine    int
	EndLine      int
	Content      string
	Language     string
	SymbolName   string
	Score        float64
	BM25Rank     int
	SemanticRank int
}

// projectIndex is the in-memory index for one project, mirroring
// retrieval.py's ProjectIndex.
type projectIndex struct {
	chunks         []CodeChunk
	bm25           *bm25Index
	vectors        [][]float32
	fileCount      int
	embeddingModel string
}

const (
	minTopK = 1
	maxTopK = 500
)

// HybridRetriever combines BM25 keyword search with embedding cosine
// similarity, fused via Reciprocal Rank Fusion, grounded on
// retrieval.py's HybridRetriever.
type HybridRetriever struct {
	chunker   *Chunker
	embedder  embeddings.Provider
	hashStore *HashStore
	logger    *observability.Logger

	mu      sync.Mutex
	indexes map[string]*projectIndex
}

// NewHybridRetriever builds a retriever over the given embedding provider.
// hashStore may be nil, which disables incremental rebuild bookkeeping
// (every BuildIndex call performs a full rebuild).
func NewHybridRetriever(embedder embeddings.Provider, hashStore *HashStore, logger *observability.Logger) *HybridRetriever {
	return &HybridRetriever{
		chunker:   NewChunker(DefaultMaxChunkLines),
		embedder:  embedder,
		hashStore: hashStore,
		logger:    logger,
		indexes:   make(map[string]*projectIndex),
	}
}

// BuildIndex chunks the workspace, builds the BM25 index, and embeds every
// chunk, reusing chunks and embeddings from a prior build for files whose
// content hash has not changed (unless the embedding model changed, which
// forces a full rebuild).
func (r *HybridRetriever) BuildIndex(ctx context.Context, projectID, workspacePath, embeddingModel string) IndexStatus {
	r.mu.Lock()
	existing := r.indexes[projectID]
	r.mu.Unlock()

	chunksByFile := make(map[string][]CodeChunk)
	for _, c := range r.chunker.ChunkWorkspace(workspacePath) {
		chunksByFile[c.Filepath] = append(chunksByFile[c.Filepath], c)
	}
	if len(chunksByFile) == 0 {
		return IndexStatus{ProjectID: projectID, Status: "empty", EmbeddingModel: embeddingModel}
	}

	newHashes := make(map[string]string, len(chunksByFile))
	for path, chunks := range chunksByFile {
		newHashes[path] = contentHash(joinChunkContent(chunks))
	}

	prevHashes := map[string]string{}
	modelChanged := existing != nil && existing.embeddingModel != embeddingModel
	if r.hashStore != nil && !modelChanged {
		if loaded, err := r.hashStore.Load(ctx, projectID); err == nil {
			prevHashes = loaded
		}
	}

	var changedFiles, unchangedFiles []string
	for path := range chunksByFile {
		if prevHashes[path] == newHashes[path] {
			unchangedFiles = append(unchangedFiles, path)
		} else {
			changedFiles = append(changedFiles, path)
		}
	}
	incremental := len(prevHashes) > 0 && len(unchangedFiles) > 0 && existing != nil

	var chunks []CodeChunk
	var vectors [][]float32
	if incremental {
		unchangedChunksByFile := indexByFile(existing.chunks)
		unchangedVectorsByFile := indexVectorsByFile(existing.chunks, existing.vectors)
		for _, path := range unchangedFiles {
			chunks = append(chunks, unchangedChunksByFile[path]...)
			vectors = append(vectors, unchangedVectorsByFile[path]...)
		}
	}

	var toEmbed []CodeChunk
	for _, path := range changedFiles {
		toEmbed = append(toEmbed, chunksByFile[path]...)
	}
	if !incremental {
		toEmbed = nil
		for _, cs := range chunksByFile {
			toEmbed = append(toEmbed, cs...)
		}
		chunks = nil
		vectors = nil
	}

	embedded, err := r.embedTexts(ctx, contentsOf(toEmbed), embeddingModel)
	if err != nil {
		return IndexStatus{ProjectID: projectID, Status: "error", Error: err.Error(), EmbeddingModel: embeddingModel}
	}
	chunks = append(chunks, toEmbed...)
	vectors = append(vectors, embedded...)

	idx := &projectIndex{
		chunks:         chunks,
		bm25:           newBM25Index(contentsOf(chunks)),
		vectors:        vectors,
		fileCount:      len(chunksByFile),
		embeddingModel: embeddingModel,
	}

	r.mu.Lock()
	r.indexes[projectID] = idx
	r.mu.Unlock()

	if r.hashStore != nil {
		_ = r.hashStore.Replace(ctx, projectID, newHashes)
	}

	status := IndexStatus{
		ProjectID: projectID, Status: "ready", FileCount: idx.fileCount, ChunkCount: len(chunks),
		EmbeddingModel: embeddingModel, Incremental: incremental,
		FilesChanged: len(changedFiles), FilesUnchanged: len(unchangedFiles),
	}
	if r.logger != nil {
		r.logger.WithFields("project_id", projectID, "files", idx.fileCount, "chunks", len(chunks), "incremental", incremental).
			Info(ctx, "retrieval index built")
	}
	return status
}

// Search runs hybrid BM25 + semantic retrieval over a project's index.
func (r *HybridRetriever) Search(ctx context.Context, projectID, query string, topK int) ([]SearchResult, error) {
	if topK < minTopK {
		topK = minTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	r.mu.Lock()
	idx := r.indexes[projectID]
	r.mu.Unlock()
	if idx == nil || len(idx.chunks) == 0 {
		return nil, nil
	}

	n := len(idx.chunks)
	effectiveK := topK
	if effectiveK > n {
		effectiveK = n
	}

	bm25Ranking := idx.bm25.rank(query, n)

	queryVecs, err := r.embedTexts(ctx, []string{query}, idx.embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	var semanticRanking []int
	if len(queryVecs) > 0 {
		semanticRanking = rankByCosineSimilarity(queryVecs[0], idx.vectors)
	}

	fused := rrfFuse(bm25Ranking, semanticRanking)
	if len(fused) > effectiveK {
		fused = fused[:effectiveK]
	}

	results := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		c := idx.chunks[f.chunkIdx]
		results = append(results, SearchResult{
			Filepath: c.Filepath, StartLine: c.StartLine, EndLine: c.EndLine,
			Content: c.Content, Language: c.Language, SymbolName: c.SymbolName,
			Score:        f.score,
			BM25Rank:     rankOf(bm25Ranking, f.chunkIdx, n),
			SemanticRank: rankOf(semanticRanking, f.chunkIdx, n),
		})
	}
	return results, nil
}

// GetIndexStatus reports a project's current index state without rebuilding.
func (r *HybridRetriever) GetIndexStatus(projectID string) IndexStatus {
	r.mu.Lock()
	idx := r.indexes[projectID]
	r.mu.Unlock()
	if idx == nil {
		return IndexStatus{ProjectID: projectID, Status: "not_found"}
	}
	return IndexStatus{
		ProjectID: projectID, Status: "ready", FileCount: idx.fileCount,
		ChunkCount: len(idx.chunks), EmbeddingModel: idx.embeddingModel,
	}
}

// DropIndex removes a project's index from memory, returning whether one existed.
func (r *HybridRetriever) DropIndex(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.indexes[projectID]; !ok {
		return false
	}
	delete(r.indexes, projectID)
	return true
}

func (r *HybridRetriever) embedTexts(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 || r.embedder == nil {
		return nil, nil
	}
	_ = model // the configured provider already carries its own model
	return r.embedder.EmbedBatch(ctx, texts)
}

func contentsOf(chunks []CodeChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func joinChunkContent(chunks []CodeChunk) string {
	var total string
	for _, c := range chunks {
		total += c.Content
	}
	return total
}

func indexByFile(chunks []CodeChunk) map[string][]CodeChunk {
	out := make(map[string][]CodeChunk)
	for _, c := range chunks {
		out[c.Filepath] = append(out[c.Filepath], c)
	}
	return out
}

func indexVectorsByFile(chunks []CodeChunk, vectors [][]float32) map[string][][]float32 {
	out := make(map[string][][]float32)
	for i, c := range chunks {
		if i < len(vectors) {
			out[c.Filepath] = append(out[c.Filepath], vectors[i])
		}
	}
	return out
}
