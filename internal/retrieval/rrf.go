package retrieval

import "sort"

// rrfK is Reciprocal Rank Fusion's smoothing constant, matching
// retrieval.py's _rrf_fuse default.
const rrfK = 60

// fusedHit is one chunk index with its combined RRF score.
type fusedHit struct {
	chunkIdx int
	score    float64
}

// rrfFuse merges two rankings (slices of chunk indices, best first) into a
// single score per chunk index, returned sorted by descending score. Ties
// break on chunkIdx for determinism.
func rrfFuse(bm25Ranking, semanticRanking []int) []fusedHit {
	scores := make(map[int]float64)
	for rank, idx := range bm25Ranking {
		scores[idx] += 1.0 / float64(rrfK+rank+1)
	}
	for rank, idx := range semanticRanking {
		scores[idx] += 1.0 / float64(rrfK+rank+1)
	}

	fused := make([]fusedHit, 0, len(scores))
	for idx, score := range scores {
		fused = append(fused, fusedHit{chunkIdx: idx, score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].chunkIdx < fused[j].chunkIdx
	})
	return fused
}

// rankOf returns the 1-based position of chunkIdx in ranking, or fallback
// if chunkIdx does not appear in it.
func rankOf(ranking []int, chunkIdx, fallback int) int {
	for i, idx := range ranking {
		if idx == chunkIdx {
			return i + 1
		}
	}
	return fallback
}
