package usecase

import (
	"context"

	"go.uber.org/zap"

	"ragpipe/internal/adapter/cache"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// RetrieveUseCase handles search and retrieval operations.
type RetrieveUseCase struct {
	searcher          cache.Searcher
	minScoreThreshold float64 // Filter results below this score (0 = disabled)
	logger            *zap.Logger
}

// RetrieveOption configures a RetrieveUseCase.
type RetrieveOption func(*retrieveOptions)

type retrieveOptions struct {
	cache    *cache.QueryCache
	minScore float64
	logger   *zap.Logger
}

// WithCache serves repeated queries from c.
func WithCache(c *cache.QueryCache) RetrieveOption {
	return func(o *retrieveOptions) { o.cache = c }
}

// WithMinScore drops results scoring below min.
func WithMinScore(min float64) RetrieveOption {
	return func(o *retrieveOptions) { o.minScore = min }
}

func WithRetrieveLogger(logger *zap.Logger) RetrieveOption {
	return func(o *retrieveOptions) { o.logger = logger }
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(store port.VectorStore, opts ...RetrieveOption) *RetrieveUseCase {
	var o retrieveOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	var searcher cache.Searcher = store
	if o.cache != nil {
		searcher = cache.NewCachedSearcher(store, o.cache, o.logger)
	}
	return &RetrieveUseCase{
		searcher:          searcher,
		minScoreThreshold: o.minScore,
		logger:            o.logger,
	}
}

// Retrieve embeds query and returns the k most similar chunks, best
// first.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, k int) ([]domain.SimilarityResult, error) {
	results, err := u.searcher.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, err
	}

	if u.minScoreThreshold > 0 {
		results = u.filterByThreshold(results)
	}
	u.logger.Debug("retrieved", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

// filterByThreshold removes results below the minimum score threshold.
func (u *RetrieveUseCase) filterByThreshold(results []domain.SimilarityResult) []domain.SimilarityResult {
	filtered := make([]domain.SimilarityResult, 0, len(results))
	for _, r := range results {
		if r.Score >= u.minScoreThreshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
