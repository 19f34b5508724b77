package port

import (
	"context"

	"github.com/google/uuid"

	"ragpipe/internal/domain"
)

// VectorIndex is a storage backend for embedded chunks. Implementations
// score with the metric recorded in the manifest.
type VectorIndex interface {
	// Init creates the index if needed and checks it against the manifest.
	// It is safe to call more than once.
	Init(ctx context.Context, manifest domain.IndexManifest) error

	// Insert persists all records or none of them.
	Insert(ctx context.Context, records []domain.StoredRecord) error

	// Search returns at most k records ordered best first.
	Search(ctx context.Context, query []float32, k int) ([]domain.SimilarityResult, error)

	Count(ctx context.Context) (int, error)

	Close() error
}

// VectorStore embeds and indexes Documents and answers similarity queries.
type VectorStore interface {
	Init(ctx context.Context) error
	AddDocuments(ctx context.Context, docs []domain.Document) ([]uuid.UUID, error)
	SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SimilarityResult, error)
}
