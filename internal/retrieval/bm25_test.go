package retrieval

import "testing"

func TestBM25RanksExactTermMatchHighest(t *testing.T) {
	idx := newBM25Index([]string{
		"function to parse json documents",
		"handles authentication and login tokens",
		"parse yaml configuration files",
	})

	ranking := idx.rank("parse json", 3)
	if len(ranking) != 3 {
		t.Fatalf("expected 3 ranked docs, got %d", len(ranking))
	}
	if ranking[0] != 0 {
		t.Errorf("expected doc 0 (parse json) to rank first, got ranking %v", ranking)
	}
}

func TestBM25RankEmptyCorpus(t *testing.T) {
	idx := newBM25Index(nil)
	if ranking := idx.rank("anything", 10); ranking != nil {
		t.Errorf("expected nil ranking for empty corpus, got %v", ranking)
	}
}

func TestTokenizeLowercasesAndSplitsOnPunctuation(t *testing.T) {
	got := tokenize("Parse(json, yaml) -> Config!")
	want := []string{"parse", "json", "yaml", "config"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
