package codegraph

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

// GraphStore is the persistence/lookup surface Searcher needs. Store (below)
// implements it over Postgres; tests use an in-memory fake.
type GraphStore interface {
	SeedNodes(ctx context.Context, projectID string, symbolNames []string) ([]model.GraphNode, error)
	OutEdges(ctx context.Context, projectID, nodeID string) ([]model.GraphEdge, error)
	InEdges(ctx context.Context, projectID, nodeID string) ([]model.GraphEdge, error)
	NodeByID(ctx context.Context, projectID, nodeID string) (*model.GraphNode, error)
}

// Config configures a Postgres-backed Store, grounded on
// internal/rag/store/pgvector/store.go's Config{DSN, DB}.
type Config struct {
	DSN string
	DB  *sql.DB
}

// Store persists code-graph nodes/edges to Postgres's graph_nodes,
// graph_edges, and graph_metadata tables (spec.md §6's data model).
type Store struct {
	db     *sql.DB
	ownsDB bool
}

// New opens (or reuses) a Postgres connection for the code graph store.
func New(cfg Config) (*Store, error) {
	if cfg.DB != nil {
		return &Store{db: cfg.DB, ownsDB: false}, nil
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("codegraph: either DSN or DB must be provided")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("codegraph: open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("codegraph: ping db: %w", err)
	}
	return &Store{db: db, ownsDB: true}, nil
}

// Close releases the underlying connection if this Store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Replace deletes a project's existing graph and writes the new one in a
// single transaction, matching graphrag.py's _persist (delete-then-insert,
// edges filtered to only those whose endpoints exist as nodes).
func (s *Store) Replace(ctx context.Context, projectID string, nodes []model.GraphNode, edges []model.GraphEdge, languages []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("codegraph: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_edges WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("codegraph: delete edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("codegraph: delete nodes: %w", err)
	}

	for _, n := range nodes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO graph_nodes (id, project_id, filepath, symbol_name, kind, start_line, end_line)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			n.ID, projectID, n.Filepath, n.SymbolName, n.Kind, n.StartLine, n.EndLine)
		if err != nil {
			return fmt.Errorf("codegraph: insert node %s: %w", n.ID, err)
		}
	}

	nodeIDs := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		nodeIDs[n.ID] = struct{}{}
	}
	validEdges := 0
	for _, e := range edges {
		if _, ok := nodeIDs[e.SourceID]; !ok {
			continue
		}
		if _, ok := nodeIDs[e.TargetID]; !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_edges (project_id, source_id, target_id, kind)
			VALUES ($1, $2, $3, $4)`, projectID, e.SourceID, e.TargetID, e.Kind); err != nil {
			return fmt.Errorf("codegraph: insert edge %s->%s: %w", e.SourceID, e.TargetID, err)
		}
		validEdges++
	}

	sort.Strings(languages)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO graph_metadata (project_id, status, node_count, edge_count, languages, built_at)
		VALUES ($1, 'ready', $2, $3, $4, now())
		ON CONFLICT (project_id) DO UPDATE SET
			status = EXCLUDED.status, node_count = EXCLUDED.node_count,
			edge_count = EXCLUDED.edge_count, languages = EXCLUDED.languages,
			built_at = EXCLUDED.built_at`,
		projectID, len(nodes), validEdges, pq.Array(languages)); err != nil {
		return fmt.Errorf("codegraph: upsert metadata: %w", err)
	}

	return tx.Commit()
}

func (s *Store) SeedNodes(ctx context.Context, projectID string, symbolNames []string) ([]model.GraphNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filepath, symbol_name, kind, start_line, end_line
		FROM graph_nodes WHERE project_id = $1 AND symbol_name = ANY($2)`,
		projectID, pq.Array(symbolNames))
	if err != nil {
		return nil, fmt.Errorf("codegraph: seed nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows, projectID)
}

func (s *Store) OutEdges(ctx context.Context, projectID, nodeID string) ([]model.GraphEdge, error) {
	return s.queryEdges(ctx, `SELECT source_id, target_id, kind FROM graph_edges WHERE project_id = $1 AND source_id = $2`, projectID, nodeID)
}

func (s *Store) InEdges(ctx context.Context, projectID, nodeID string) ([]model.GraphEdge, error) {
	return s.queryEdges(ctx, `SELECT source_id, target_id, kind FROM graph_edges WHERE project_id = $1 AND target_id = $2`, projectID, nodeID)
}

func (s *Store) queryEdges(ctx context.Context, query, projectID, nodeID string) ([]model.GraphEdge, error) {
	rows, err := s.db.QueryContext(ctx, query, projectID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("codegraph: query edges: %w", err)
	}
	defer rows.Close()
	var edges []model.GraphEdge
	for rows.Next() {
		var e model.GraphEdge
		e.ProjectID = projectID
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Kind); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *Store) NodeByID(ctx context.Context, projectID, nodeID string) (*model.GraphNode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filepath, symbol_name, kind, start_line, end_line
		FROM graph_nodes WHERE project_id = $1 AND id = $2`, projectID, nodeID)
	var n model.GraphNode
	n.ProjectID = projectID
	if err := row.Scan(&n.ID, &n.Filepath, &n.SymbolName, &n.Kind, &n.StartLine, &n.EndLine); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func scanNodes(rows *sql.Rows, projectID string) ([]model.GraphNode, error) {
	var nodes []model.GraphNode
	for rows.Next() {
		var n model.GraphNode
		n.ProjectID = projectID
		if err := rows.Scan(&n.ID, &n.Filepath, &n.SymbolName, &n.Kind, &n.StartLine, &n.EndLine); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
