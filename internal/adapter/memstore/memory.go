package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ragpipe/internal/adapter/vecmath"
	"ragpipe/internal/domain"
)

// Index is an in-memory vector index. Records are kept in insertion order
// so ties in search are broken by it. It backs the "memory" store and the
// search cache of the bolt store.
type Index struct {
	mu       sync.RWMutex
	manifest *domain.IndexManifest
	records  []domain.StoredRecord
	vectors  [][]float32
	ids      map[uuid.UUID]struct{}
}

func NewIndex() *Index {
	return &Index{ids: make(map[uuid.UUID]struct{})}
}

func (s *Index) Init(_ context.Context, manifest domain.IndexManifest) error {
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreInit, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest != nil {
		return s.manifest.Compatible(manifest)
	}
	s.manifest = &manifest
	return nil
}

// Insert appends records after checking all of them, so a bad record or
// a duplicate ID leaves the index untouched.
func (s *Index) Insert(ctx context.Context, records []domain.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest == nil {
		return fmt.Errorf("%w: index not initialized", domain.ErrStoreWrite)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	for _, r := range records {
		if len(r.Vector) != s.manifest.Dimension {
			return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d", domain.ErrStoreWrite, s.manifest.Dimension, len(r.Vector))
		}
	}
	if err := s.checkIDsLocked(records); err != nil {
		return err
	}

	s.appendLocked(records)
	return nil
}

// Load appends records that are already persisted elsewhere, skipping
// validation.
func (s *Index) Load(records []domain.StoredRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(records)
}

func (s *Index) checkIDsLocked(records []domain.StoredRecord) error {
	seen := make(map[uuid.UUID]struct{}, len(records))
	for _, r := range records {
		if _, ok := s.ids[r.ID]; ok {
			return fmt.Errorf("%w: duplicate record id %s", domain.ErrStoreWrite, r.ID)
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: duplicate record id %s in batch", domain.ErrStoreWrite, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

func (s *Index) appendLocked(records []domain.StoredRecord) {
	for _, r := range records {
		s.records = append(s.records, r)
		s.vectors = append(s.vectors, r.Vector)
		s.ids[r.ID] = struct{}{}
	}
}

// Search ranks every record against query (brute force).
func (s *Index) Search(_ context.Context, query []float32, k int) ([]domain.SimilarityResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.manifest == nil {
		return nil, fmt.Errorf("%w: index not initialized", domain.ErrStoreQuery)
	}
	if len(query) != s.manifest.Dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d", domain.ErrStoreQuery, s.manifest.Dimension, len(query))
	}

	ranked, err := vecmath.Rank(s.manifest.Metric, query, s.vectors, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreQuery, err)
	}

	results := make([]domain.SimilarityResult, len(ranked))
	for i, r := range ranked {
		rec := s.records[r.Index]
		results[i] = domain.SimilarityResult{
			ID:      rec.ID,
			Path:    rec.Path,
			Content: rec.Content,
			Score:   r.Score,
		}
	}
	return results, nil
}

func (s *Index) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Index) Close() error {
	return nil
}
