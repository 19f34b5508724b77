package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"ragpipe/internal/adapter/vecmath"
	"ragpipe/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	id      TEXT NOT NULL UNIQUE,
	path    TEXT NOT NULL,
	content TEXT NOT NULL,
	vector  BLOB NOT NULL
);`

// SQLiteIndex keeps records in SQLite with vectors as little-endian
// float32 BLOBs. Scoring happens in Go over a full scan.
type SQLiteIndex struct {
	db       *sql.DB
	mu       sync.RWMutex
	manifest *domain.IndexManifest
}

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStoreInit, path, err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Init(ctx context.Context, manifest domain.IndexManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest != nil {
		return s.manifest.Compatible(manifest)
	}

	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("%w: create schema: %v", domain.ErrStoreInit, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreInit, err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, manifestKey).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: read manifest: %v", domain.ErrStoreInit, err)
	}

	data, err := reconcileManifest([]byte(stored), manifest)
	if err != nil {
		return err
	}
	if data != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, manifestKey, string(data)); err != nil {
			return fmt.Errorf("%w: write manifest: %v", domain.ErrStoreInit, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreInit, err)
	}

	s.manifest = &manifest
	return nil
}

// Insert writes the batch in one transaction.
func (s *SQLiteIndex) Insert(ctx context.Context, records []domain.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest == nil {
		return fmt.Errorf("%w: index not initialized", domain.ErrStoreWrite)
	}
	for _, r := range records {
		if len(r.Vector) != s.manifest.Dimension {
			return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d", domain.ErrStoreWrite, s.manifest.Dimension, len(r.Vector))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (id, path, content, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID.String(), r.Path, r.Content, vecmath.Encode(r.Vector)); err != nil {
			return fmt.Errorf("%w: insert %s: %v", domain.ErrStoreWrite, r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, query []float32, k int) ([]domain.SimilarityResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.manifest == nil {
		return nil, fmt.Errorf("%w: index not initialized", domain.ErrStoreQuery)
	}
	if len(query) != s.manifest.Dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d", domain.ErrStoreQuery, s.manifest.Dimension, len(query))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, path, content, vector FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreQuery, err)
	}
	defer rows.Close()

	var (
		candidates []domain.SimilarityResult
		vectors    [][]float32
	)
	for rows.Next() {
		var (
			id, path, content string
			blob              []byte
		)
		if err := rows.Scan(&id, &path, &content, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStoreQuery, err)
		}
		vec, err := vecmath.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", domain.ErrStoreQuery, id, err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", domain.ErrStoreQuery, id, err)
		}
		candidates = append(candidates, domain.SimilarityResult{ID: parsed, Path: path, Content: content})
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreQuery, err)
	}

	ranked, err := vecmath.Rank(s.manifest.Metric, query, vectors, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreQuery, err)
	}

	results := make([]domain.SimilarityResult, len(ranked))
	for i, r := range ranked {
		results[i] = candidates[r.Index]
		results[i].Score = r.Score
	}
	return results, nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.manifest == nil {
		return 0, fmt.Errorf("%w: index not initialized", domain.ErrStoreQuery)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreQuery, err)
	}
	return n, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
