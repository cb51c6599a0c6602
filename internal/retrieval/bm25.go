package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// bm25K1 and bm25B are the standard Okapi BM25 tuning constants; bm25s (the
// library retrieval.py calls) defaults to the same pair.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index scores a fixed corpus against queries via Okapi BM25. No BM25
// library is imported anywhere in the example pack (grep across every
// go.mod in the retrieval pack turns up nothing), so this is hand-rolled
// per DESIGN.md's stdlib-use justification, grounded algorithmically on
// retrieval.py's bm25s.BM25 usage.
type bm25Index struct {
	docTokens [][]string
	docFreq   map[string]int // number of docs containing a term
	docLen    []int
	avgDocLen float64
}

func newBM25Index(corpus []string) *bm25Index {
	idx := &bm25Index{
		docTokens: make([][]string, len(corpus)),
		docFreq:   make(map[string]int),
		docLen:    make([]int, len(corpus)),
	}

	var totalLen int
	for i, doc := range corpus {
		tokens := tokenize(doc)
		idx.docTokens[i] = tokens
		idx.docLen[i] = len(tokens)
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			idx.docFreq[t]++
		}
	}
	if len(corpus) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(corpus))
	}
	return idx
}

// rank returns the indices of the top-k scoring documents for query,
// sorted by descending BM25 score.
func (idx *bm25Index) rank(query string, k int) []int {
	n := len(idx.docTokens)
	if n == 0 {
		return nil
	}
	queryTerms := tokenize(query)

	scores := make([]float64, n)
	for _, term := range queryTerms {
		df := idx.docFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for docIdx, tokens := range idx.docTokens {
			tf := termFreq(tokens, term)
			if tf == 0 {
				continue
			}
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(idx.docLen[docIdx])/idx.avgDocLen)
			scores[docIdx] += idf * (float64(tf) * (bm25K1 + 1)) / denom
		}
	}

	ranking := make([]int, n)
	for i := range ranking {
		ranking[i] = i
	}
	sort.Slice(ranking, func(i, j int) bool {
		if scores[ranking[i]] != scores[ranking[j]] {
			return scores[ranking[i]] > scores[ranking[j]]
		}
		return ranking[i] < ranking[j]
	})

	if k > 0 && k < len(ranking) {
		ranking = ranking[:k]
	}
	return ranking
}

func termFreq(tokens []string, term string) int {
	count := 0
	for _, t := range tokens {
		if t == term {
			count++
		}
	}
	return count
}

// tokenize lowercases and splits on runs of non-alphanumeric characters,
// matching bm25s.tokenize's default word-boundary behavior closely enough
// for keyword search over source code and prose.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
