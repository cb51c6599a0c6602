package memory

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("new sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewPostgresStore(StoreConfig{DB: db})
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	return store, mock
}

func TestStoreMemoryInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO agent_memories").
		WithArgs("mem-1", "tenant-1", "proj-1", "agent-1", "run-1", "did the thing", KindDecision,
			float32(0.8), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.StoreMemory(context.Background(), AgentMemory{
		ID: "mem-1", TenantID: "tenant-1", ProjectID: "proj-1", AgentID: "agent-1", RunID: "run-1",
		Content: "did the thing", Kind: KindDecision, Importance: 0.8, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("store memory: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecallMemoriesOrdersByImportanceThenRecency(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "project_id", "agent_id", "run_id", "content", "kind", "importance", "embedding", "metadata", "created_at"}).
		AddRow("mem-1", "t1", "proj-1", "agent-1", "run-1", "high importance", KindInsight, float32(0.9), nil, nil, now).
		AddRow("mem-2", "t1", "proj-1", "agent-1", "run-2", "lower importance", KindObservation, float32(0.5), nil, nil, now)

	mock.ExpectQuery("SELECT .* FROM agent_memories .*ORDER BY importance DESC, created_at DESC").
		WithArgs("proj-1", "agent-1", 10).
		WillReturnRows(rows)

	memories, err := store.RecallMemories(context.Background(), "proj-1", "agent-1", 10)
	if err != nil {
		t.Fatalf("recall memories: %v", err)
	}
	if len(memories) != 2 || memories[0].ID != "mem-1" {
		t.Fatalf("unexpected memories: %+v", memories)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEncodeDecodeEmbeddingRoundTrips(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	raw, err := encodeEmbedding(vec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeEmbedding(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("round trip length mismatch: %v", got)
	}
}

func TestEncodeEmbeddingEmptyReturnsNil(t *testing.T) {
	raw, err := encodeEmbedding(nil)
	if err != nil || raw != nil {
		t.Errorf("expected nil, nil for empty vector, got %v, %v", raw, err)
	}
}
