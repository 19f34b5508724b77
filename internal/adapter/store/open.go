package store

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"ragpipe/internal/adapter/memstore"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Backend names a VectorIndex implementation.
type Backend string

const (
	BackendBolt    Backend = "bolt"
	BackendSQLite  Backend = "sqlite"
	BackendChromem Backend = "chromem"
	BackendMemory  Backend = "memory"
)

// IndexOptions locates the data of a backend.
type IndexOptions struct {
	Backend    Backend
	Path       string // file (bolt, sqlite) or directory (chromem); ignored by memory
	Collection string // chromem only
	Logger     *zap.Logger
}

// OpenIndex opens the configured backend, creating parent directories as
// needed.
func OpenIndex(opts IndexOptions) (port.VectorIndex, error) {
	switch opts.Backend {
	case BackendMemory:
		return memstore.NewIndex(), nil
	case BackendBolt, BackendSQLite:
		if err := ensureParent(opts.Path); err != nil {
			return nil, err
		}
		if opts.Backend == BackendBolt {
			return OpenBolt(opts.Path)
		}
		return OpenSQLite(opts.Path)
	case BackendChromem:
		return OpenChromem(opts.Path, opts.Collection, opts.Logger)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", domain.ErrConfig, opts.Backend)
	}
}

func ensureParent(path string) error {
	if path == "" {
		return fmt.Errorf("%w: store path is required", domain.ErrConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreInit, err)
	}
	return nil
}
