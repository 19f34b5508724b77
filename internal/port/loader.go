package port

import (
	"context"

	"ragpipe/internal/domain"
)

// FileLoader reads a single file into a Document.
type FileLoader interface {
	Load(ctx context.Context, path string) (domain.Document, error)
}

// DocumentLoader produces Documents from a root location.
type DocumentLoader interface {
	Load(ctx context.Context, root string) ([]domain.Document, error)
}
