package port

import "context"

// FileWalker enumerates files under a root directory.
type FileWalker interface {
	Walk(ctx context.Context, root string) ([]FileInfo, error)
}

// FileInfo describes a file found by a FileWalker.
type FileInfo struct {
	Path    string // absolute path
	RelPath string // slash-separated path relative to the walk root
	ModTime int64
	Size    int64
}
