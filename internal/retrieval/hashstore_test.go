package retrieval

import (
	"context"
	"testing"
)

func TestHashStoreRoundTrip(t *testing.T) {
	store, err := NewHashStore("")
	if err != nil {
		t.Fatalf("new hash store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if got, err := store.Load(ctx, "proj"); err != nil || len(got) != 0 {
		t.Fatalf("expected empty hashes for unseen project, got %v err=%v", got, err)
	}

	want := map[string]string{"a.go": "hash-a", "b.go": "hash-b"}
	if err := store.Replace(ctx, "proj", want); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := store.Load(ctx, "proj")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(want) || got["a.go"] != "hash-a" || got["b.go"] != "hash-b" {
		t.Errorf("load() = %v, want %v", got, want)
	}

	if err := store.Replace(ctx, "proj", map[string]string{"c.go": "hash-c"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = store.Load(ctx, "proj")
	if len(got) != 1 || got["c.go"] != "hash-c" {
		t.Errorf("expected Replace to fully overwrite, got %v", got)
	}
}

func TestContentHashIsStableAndSensitiveToContent(t *testing.T) {
	h1 := contentHash("hello")
	h2 := contentHash("hello")
	h3 := contentHash("world")
	if h1 != h2 {
		t.Errorf("expected identical content to hash identically")
	}
	if h1 == h3 {
		t.Errorf("expected different content to hash differently")
	}
}
