package retrieval

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers as "sqlite"
)

// HashStore persists per-file content hashes so a rebuild can tell which
// files changed and reuse the in-memory chunks and embeddings of the rest.
// Every rebuild still reads all files; after a process restart there is no
// in-memory index to reuse, so every file is re-embedded. Grounded on
// internal/memory/backend/sqlitevec/backend.go's sql.Open + CREATE TABLE IF
// NOT EXISTS pattern.
type HashStore struct {
	db *sql.DB
}

// NewHashStore opens (creating if needed) the sqlite file at path. path ==
// "" uses an in-memory database, useful for tests and single-shot builds.
func NewHashStore(path string) (*HashStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("retrieval: open hash store: %w", err)
	}
	if path == ":memory:" {
		// A pooled :memory: connection gets its own private database per
		// connection; pin the pool to one connection so every query sees
		// the same schema and rows.
		db.SetMaxOpenConns(1)
	}
	store := &HashStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *HashStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS file_hashes (
			project_id TEXT NOT NULL,
			filepath   TEXT NOT NULL,
			hash       TEXT NOT NULL,
			PRIMARY KEY (project_id, filepath)
		)`)
	if err != nil {
		return fmt.Errorf("retrieval: create file_hashes table: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *HashStore) Close() error { return s.db.Close() }

// Load returns the previously recorded filepath -> content-hash map for a
// project, empty if nothing has been recorded yet.
func (s *HashStore) Load(ctx context.Context, projectID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filepath, hash FROM file_hashes WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load file hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// Replace overwrites a project's recorded hashes with the given set.
func (s *HashStore) Replace(ctx context.Context, projectID string, hashes map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("retrieval: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_hashes WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("retrieval: clear file hashes: %w", err)
	}
	for path, hash := range hashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_hashes (project_id, filepath, hash) VALUES (?, ?, ?)`,
			projectID, path, hash); err != nil {
			return fmt.Errorf("retrieval: insert file hash %s: %w", path, err)
		}
	}
	return tx.Commit()
}

// contentHash returns a stable content fingerprint (hex SHA-256) for
// incremental rebuild staleness checks.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
