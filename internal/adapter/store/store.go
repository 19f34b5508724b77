// Package store implements the vector store on top of pluggable index
// backends (bolt, sqlite, chromem, memory).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Store embeds documents and keeps them in a VectorIndex. Each call to
// AddDocuments makes one Embed call and one Insert; the batch is written
// entirely or not at all.
type Store struct {
	index    port.VectorIndex
	embedder port.Embedder
	metric   domain.Metric
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMetric sets the similarity metric. The default is cosine.
func WithMetric(m domain.Metric) Option {
	return func(s *Store) { s.metric = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(index port.VectorIndex, embedder port.Embedder, opts ...Option) *Store {
	s := &Store{
		index:    index,
		embedder: embedder,
		metric:   domain.MetricCosine,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Embedder returns the provider used for documents and queries.
func (s *Store) Embedder() port.Embedder {
	return s.embedder
}

// Manifest describes the index this store reads and writes.
func (s *Store) Manifest() domain.IndexManifest {
	return domain.IndexManifest{
		Metric:    s.metric,
		Dimension: s.embedder.Dimension(),
		Model:     s.embedder.ModelName(),
	}
}

// Init creates the index if it does not exist. Calling it again is a
// no-op as long as the metric, dimension and model still match.
func (s *Store) Init(ctx context.Context) error {
	manifest := s.Manifest()
	if err := s.index.Init(ctx, manifest); err != nil {
		return wrap(domain.ErrStoreInit, err)
	}
	s.logger.Debug("store initialized",
		zap.String("metric", string(manifest.Metric)),
		zap.Int("dimension", manifest.Dimension),
		zap.String("model", manifest.Model))
	return nil
}

// AddDocuments embeds docs in one batch and stores them. It returns the
// generated record IDs in input order.
func (s *Store) AddDocuments(ctx context.Context, docs []domain.Document) ([]uuid.UUID, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, wrap(domain.ErrProvider, err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d documents", domain.ErrProvider, len(vectors), len(docs))
	}

	ids := make([]uuid.UUID, len(docs))
	records := make([]domain.StoredRecord, len(docs))
	for i, doc := range docs {
		ids[i] = uuid.New()
		records[i] = domain.StoredRecord{
			ID:      ids[i],
			Path:    doc.Path,
			Content: doc.Content,
			Vector:  vectors[i],
		}
	}

	if err := s.index.Insert(ctx, records); err != nil {
		return nil, wrap(domain.ErrStoreWrite, err)
	}

	s.logger.Info("stored documents", zap.Int("documents", len(records)))
	return ids, nil
}

// SimilaritySearch embeds query and returns the k most similar records,
// best first. A k of zero or less returns nothing.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SimilarityResult, error) {
	if k <= 0 {
		return []domain.SimilarityResult{}, nil
	}

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, wrap(domain.ErrProvider, err)
	}
	return s.SearchVector(ctx, vector, k)
}

// SearchVector returns the k records most similar to an already embedded
// query.
func (s *Store) SearchVector(ctx context.Context, vector []float32, k int) ([]domain.SimilarityResult, error) {
	if k <= 0 {
		return []domain.SimilarityResult{}, nil
	}

	results, err := s.index.Search(ctx, vector, k)
	if err != nil {
		return nil, wrap(domain.ErrStoreQuery, err)
	}
	if results == nil {
		results = []domain.SimilarityResult{}
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.index.Count(ctx)
	if err != nil {
		return 0, wrap(domain.ErrStoreQuery, err)
	}
	return n, nil
}

// Stats summarizes the index.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	m := s.Manifest()
	return domain.Stats{Records: n, Dimension: m.Dimension, Metric: string(m.Metric), Model: m.Model}, nil
}

func (s *Store) Close() error {
	return s.index.Close()
}

// wrap tags err with kind unless it already carries a taxonomy error.
func wrap(kind, err error) error {
	for _, known := range []error{
		domain.ErrIO, domain.ErrParse, domain.ErrProvider, domain.ErrStoreInit,
		domain.ErrStoreWrite, domain.ErrStoreQuery, domain.ErrConfig,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
