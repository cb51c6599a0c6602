package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// AgentMemory is one row of the agent_memories table (spec.md §6): an
// agent-scoped observation/decision/error/insight, optionally embedded for
// future semantic recall.
type AgentMemory struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	ProjectID  string         `json:"project_id"`
	AgentID    string         `json:"agent_id"`
	RunID      string         `json:"run_id"`
	Content    string         `json:"content"`
	Kind       string         `json:"kind"`
	Importance float32        `json:"importance"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Valid memory kinds, per spec.md §3's Memory data model.
const (
	KindObservation = "observation"
	KindDecision    = "decision"
	KindError       = "error"
	KindInsight     = "insight"
)

// Store persists and recalls AgentMemory rows. As an interface it lets
// handler tests substitute an in-memory fake; PostgresStore itself is
// tested against a sqlmock-backed *sql.DB passed in StoreConfig.DB.
type Store interface {
	StoreMemory(ctx context.Context, m AgentMemory) error
	RecallMemories(ctx context.Context, projectID, agentID string, limit int) ([]AgentMemory, error)
	Close() error
}

// PostgresStore implements Store over the agent_memories table, grounded on
// internal/codegraph/store.go's Config{DSN,DB}/New connection-reuse shape.
type PostgresStore struct {
	db     *sql.DB
	ownsDB bool
}

// StoreConfig configures a PostgresStore. Either DSN or an already-open DB
// may be supplied; supplying DB lets callers share one connection pool (or,
// in tests, plug in a sqlmock database) across stores.
type StoreConfig struct {
	DSN string
	DB  *sql.DB
}

// NewPostgresStore opens (or reuses) a Postgres connection for agent memory
// storage.
func NewPostgresStore(cfg StoreConfig) (*PostgresStore, error) {
	if cfg.DB != nil {
		return &PostgresStore{db: cfg.DB, ownsDB: false}, nil
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("memory: either DSN or DB must be provided")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("memory: open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: ping db: %w", err)
	}
	return &PostgresStore{db: db, ownsDB: true}, nil
}

// Close releases the underlying connection if this store opened it.
func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// StoreMemory inserts one agent memory row.
func (s *PostgresStore) StoreMemory(ctx context.Context, m AgentMemory) error {
	embeddingBytes, err := encodeEmbedding(m.Embedding)
	if err != nil {
		return fmt.Errorf("memory: encode embedding: %w", err)
	}
	metadataBytes, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("memory: encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_memories
			(id, tenant_id, project_id, agent_id, run_id, content, kind, importance, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.TenantID, m.ProjectID, m.AgentID, m.RunID, m.Content, m.Kind, m.Importance,
		embeddingBytes, metadataBytes, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("memory: insert agent memory: %w", err)
	}
	return nil
}

// RecallMemories returns up to limit memories for a project (optionally
// narrowed to one agent), ordered by importance descending with
// most-recent-first as the tiebreak, per spec.md §8's resolution.
func (s *PostgresStore) RecallMemories(ctx context.Context, projectID, agentID string, limit int) ([]AgentMemory, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, tenant_id, project_id, agent_id, run_id, content, kind, importance, embedding, metadata, created_at
		FROM agent_memories
		WHERE project_id = $1 AND ($2 = '' OR agent_id = $2)
		ORDER BY importance DESC, created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, projectID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: recall memories: %w", err)
	}
	defer rows.Close()

	var out []AgentMemory
	for rows.Next() {
		var m AgentMemory
		var embeddingBytes, metadataBytes []byte
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ProjectID, &m.AgentID, &m.RunID, &m.Content,
			&m.Kind, &m.Importance, &embeddingBytes, &metadataBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan agent memory: %w", err)
		}
		if m.Embedding, err = decodeEmbedding(embeddingBytes); err != nil {
			return nil, fmt.Errorf("memory: decode embedding: %w", err)
		}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &m.Metadata); err != nil {
				return nil, fmt.Errorf("memory: decode metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// encodeEmbedding/decodeEmbedding round-trip an embedding vector through the
// bytea column as JSON. No vector column type is assumed, consistent with
// the worker treating Postgres as a plain relational store (spec.md §1: the
// database itself is out of scope, consumed only through its schema).
func encodeEmbedding(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	return json.Marshal(vec)
}

func decodeEmbedding(raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
