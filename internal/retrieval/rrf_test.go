package retrieval

import "testing"

func TestRRFFuseFavorsAgreementAcrossRankings(t *testing.T) {
	bm25 := []int{2, 0, 1}
	semantic := []int{0, 2, 1}

	fused := rrfFuse(bm25, semantic)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused entries, got %d", len(fused))
	}
	// doc 0 and doc 2 each appear in the top two of both rankings; doc 2
	// is first in bm25 and second in semantic, doc 0 is second in bm25
	// and first in semantic -- both should outrank doc 1, which is last
	// in both rankings.
	if fused[2].chunkIdx != 1 {
		t.Errorf("expected doc 1 to rank last, got fused=%+v", fused)
	}
}

func TestRankOfFallsBackWhenMissing(t *testing.T) {
	ranking := []int{5, 2, 9}
	if got := rankOf(ranking, 2, 99); got != 2 {
		t.Errorf("rankOf(present) = %d, want 2", got)
	}
	if got := rankOf(ranking, 42, 99); got != 99 {
		t.Errorf("rankOf(absent) = %d, want fallback 99", got)
	}
}
