package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"ragpipe/internal/adapter/vecmath"
	"ragpipe/internal/domain"
)

const metaPath = "path"

// ChromemIndex stores records in a chromem-go collection. chromem only
// supports cosine similarity, and equal scores come back in no
// particular order.
type ChromemIndex struct {
	db         *chromem.DB
	dir        string
	name       string
	mu         sync.Mutex
	manifest   *domain.IndexManifest
	collection *chromem.Collection
	logger     *zap.Logger
}

// OpenChromem opens a persistent database under dir, or an in-memory one
// when dir is empty.
func OpenChromem(dir, collection string, logger *zap.Logger) (*ChromemIndex, error) {
	if collection == "" {
		collection = "documents"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	if dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStoreInit, dir, err)
		}
	}
	return &ChromemIndex{db: db, dir: dir, name: collection, logger: logger}, nil
}

// precomputedOnly is the collection's embedding func. Records always
// carry their vectors, so it is never expected to run.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index expects precomputed embeddings")
}

func (s *ChromemIndex) Init(_ context.Context, manifest domain.IndexManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manifest != nil {
		return s.manifest.Compatible(manifest)
	}
	if manifest.Metric != domain.MetricCosine {
		return fmt.Errorf("%w: chromem only supports cosine similarity, got %s", domain.ErrStoreInit, manifest.Metric)
	}

	if err := s.reconcileManifestFile(manifest); err != nil {
		return err
	}

	collection, err := s.db.GetOrCreateCollection(s.name, map[string]string{
		"metric": string(manifest.Metric),
		"model":  manifest.Model,
	}, precomputedOnly)
	if err != nil {
		return fmt.Errorf("%w: collection %s: %v", domain.ErrStoreInit, s.name, err)
	}

	s.collection = collection
	s.manifest = &manifest
	return nil
}

// reconcileManifestFile keeps the manifest next to a persistent database,
// since chromem does not expose collection metadata once created.
func (s *ChromemIndex) reconcileManifestFile(manifest domain.IndexManifest) error {
	if s.dir == "" {
		return reconcileOnly(manifest)
	}

	path := filepath.Join(s.dir, s.name+".manifest.json")
	stored, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: read manifest: %v", domain.ErrStoreInit, err)
	}

	data, err := reconcileManifest(stored, manifest)
	if err != nil {
		return err
	}
	if data != nil {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("%w: write manifest: %v", domain.ErrStoreInit, err)
		}
	}
	return nil
}

func reconcileOnly(manifest domain.IndexManifest) error {
	_, err := reconcileManifest(nil, manifest)
	return err
}

// Insert adds the batch. chromem writes documents one by one, so on
// failure or cancellation the IDs of this batch are deleted again.
// Zero-magnitude vectors are rejected since chromem cannot normalize them.
func (s *ChromemIndex) Insert(ctx context.Context, records []domain.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collection == nil {
		return fmt.Errorf("%w: index not initialized", domain.ErrStoreWrite)
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		if len(r.Vector) != s.manifest.Dimension {
			return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d", domain.ErrStoreWrite, s.manifest.Dimension, len(r.Vector))
		}
		if vecmath.IsZero(r.Vector) {
			return fmt.Errorf("%w: record %s has a zero-magnitude vector", domain.ErrStoreWrite, r.ID)
		}
		ids[i] = r.ID.String()
		if _, err := s.collection.GetByID(ctx, ids[i]); err == nil || slices.Contains(ids[:i], ids[i]) {
			return fmt.Errorf("%w: duplicate record id %s", domain.ErrStoreWrite, r.ID)
		}
		docs[i] = chromem.Document{
			ID:        ids[i],
			Metadata:  map[string]string{metaPath: r.Path},
			Embedding: r.Vector,
			Content:   r.Content,
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}

	before := s.collection.Count()
	err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU())
	if err == nil {
		// AddDocuments returns nil when its workers stop on a cancelled
		// context, possibly after writing part of the batch.
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		} else if added := s.collection.Count() - before; added != len(docs) {
			err = fmt.Errorf("stored %d of %d documents", added, len(docs))
		}
	}
	if err != nil {
		s.rollback(ids)
		return fmt.Errorf("%w: %v", domain.ErrStoreWrite, err)
	}
	return nil
}

func (s *ChromemIndex) rollback(ids []string) {
	if err := s.collection.Delete(context.Background(), nil, nil, ids...); err != nil {
		s.logger.Warn("rollback of partial chromem batch failed", zap.Error(err))
	}
}

func (s *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]domain.SimilarityResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collection == nil {
		return nil, fmt.Errorf("%w: index not initialized", domain.ErrStoreQuery)
	}
	if len(query) != s.manifest.Dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d", domain.ErrStoreQuery, s.manifest.Dimension, len(query))
	}

	if vecmath.IsZero(query) {
		return nil, fmt.Errorf("%w: zero-magnitude query vector", domain.ErrStoreQuery)
	}

	k = min(k, s.collection.Count())
	if k <= 0 {
		return nil, nil
	}

	hits, err := s.collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreQuery, err)
	}

	results := make([]domain.SimilarityResult, 0, len(hits))
	for _, h := range hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", domain.ErrStoreQuery, h.ID, err)
		}
		results = append(results, domain.SimilarityResult{
			ID:      id,
			Path:    h.Metadata[metaPath],
			Content: h.Content,
			Score:   float64(h.Similarity),
		})
	}
	return results, nil
}

func (s *ChromemIndex) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collection == nil {
		return 0, fmt.Errorf("%w: index not initialized", domain.ErrStoreQuery)
	}
	return s.collection.Count(), nil
}

// Close is a no-op; persistent chromem databases write on every insert.
func (s *ChromemIndex) Close() error {
	return nil
}
