package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Invalidator is notified after the index has been written to.
type Invalidator interface {
	Invalidate()
}

// IndexUseCase runs the write path: load, split, embed and store.
type IndexUseCase struct {
	loader   port.DocumentLoader
	splitter port.Splitter
	store    port.VectorStore
	cache    Invalidator
	logger   *zap.Logger
}

// IndexOption configures an IndexUseCase.
type IndexOption func(*IndexUseCase)

// WithInvalidator registers a cache to clear after every successful write.
func WithInvalidator(c Invalidator) IndexOption {
	return func(u *IndexUseCase) { u.cache = c }
}

func WithIndexLogger(logger *zap.Logger) IndexOption {
	return func(u *IndexUseCase) { u.logger = logger }
}

// NewIndexUseCase creates a new index use case. loader may be nil when
// only IndexDocuments is used.
func NewIndexUseCase(loader port.DocumentLoader, splitter port.Splitter, store port.VectorStore, opts ...IndexOption) *IndexUseCase {
	u := &IndexUseCase{
		loader:   loader,
		splitter: splitter,
		store:    store,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = zap.NewNop()
	}
	return u
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	Documents int
	Chunks    int
	IDs       []uuid.UUID
}

// Index loads every document under root and indexes it. Any failure
// aborts the run.
func (u *IndexUseCase) Index(ctx context.Context, root string) (*IndexResult, error) {
	if err := u.store.Init(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	docs, err := u.loader.Load(ctx, root)
	if err != nil {
		return nil, err
	}
	u.logger.Debug("load stage done",
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)))

	return u.write(ctx, docs)
}

// IndexDocuments splits and indexes documents that are already loaded.
func (u *IndexUseCase) IndexDocuments(ctx context.Context, docs []domain.Document) (*IndexResult, error) {
	if err := u.store.Init(ctx); err != nil {
		return nil, err
	}
	return u.write(ctx, docs)
}

func (u *IndexUseCase) write(ctx context.Context, docs []domain.Document) (*IndexResult, error) {
	start := time.Now()
	chunks, err := u.splitter.SplitDocuments(docs)
	if err != nil {
		return nil, err
	}
	u.logger.Info("split documents",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))

	start = time.Now()
	ids, err := u.store.AddDocuments(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 && u.cache != nil {
		u.cache.Invalidate()
	}
	u.logger.Info("indexed chunks",
		zap.Int("chunks", len(ids)),
		zap.Duration("elapsed", time.Since(start)))

	return &IndexResult{Documents: len(docs), Chunks: len(chunks), IDs: ids}, nil
}
