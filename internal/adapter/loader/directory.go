package loader

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragpipe/internal/adapter/fs"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

const defaultConcurrency = 8

type binding struct {
	pattern string
	loader  port.FileLoader
}

// DirectoryLoader loads every file under a root that matches one of its
// glob bindings. The first matching binding decides the loader; files
// matching none are skipped.
type DirectoryLoader struct {
	bindings    []binding
	excludes    []string
	concurrency int
	progress    func(done, total int)
	logger      *zap.Logger
}

// Option configures a DirectoryLoader.
type Option func(*DirectoryLoader)

// WithLoader routes files whose root-relative path matches pattern to l.
func WithLoader(pattern string, l port.FileLoader) Option {
	return func(d *DirectoryLoader) {
		d.bindings = append(d.bindings, binding{pattern: pattern, loader: l})
	}
}

// WithExcludes prunes matching files and directories from the walk.
func WithExcludes(patterns ...string) Option {
	return func(d *DirectoryLoader) { d.excludes = append(d.excludes, patterns...) }
}

// WithConcurrency bounds the number of files read at once.
func WithConcurrency(n int) Option {
	return func(d *DirectoryLoader) { d.concurrency = n }
}

// WithProgress registers a callback invoked after each file is read. It
// may be called from several goroutines.
func WithProgress(fn func(done, total int)) Option {
	return func(d *DirectoryLoader) { d.progress = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *DirectoryLoader) { d.logger = logger }
}

// NewDirectoryLoader validates the bindings and returns a loader.
func NewDirectoryLoader(opts ...Option) (*DirectoryLoader, error) {
	d := &DirectoryLoader{concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.concurrency <= 0 {
		d.concurrency = defaultConcurrency
	}
	if len(d.bindings) == 0 {
		return nil, fmt.Errorf("%w: directory loader needs at least one binding", domain.ErrConfig)
	}
	for _, b := range d.bindings {
		if !doublestar.ValidatePattern(b.pattern) {
			return nil, fmt.Errorf("%w: invalid loader pattern %q", domain.ErrConfig, b.pattern)
		}
	}
	for _, p := range d.excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: invalid exclude pattern %q", domain.ErrConfig, p)
		}
	}
	return d, nil
}

// Load reads all bound files under root. Documents come back in walk
// order regardless of read concurrency.
func (d *DirectoryLoader) Load(ctx context.Context, root string) ([]domain.Document, error) {
	patterns := make([]string, len(d.bindings))
	for i, b := range d.bindings {
		patterns[i] = b.pattern
	}

	files, err := fs.NewWalker(patterns, d.excludes).Walk(ctx, root)
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, len(files))
	loaded := make([]bool, len(files))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, file := range files {
		i, file := i, file
		l := d.loaderFor(file.RelPath)
		if l == nil {
			continue
		}
		g.Go(func() error {
			doc, err := l.Load(gctx, file.Path)
			if err != nil {
				return err
			}
			docs[i] = doc
			loaded[i] = true
			if d.progress != nil {
				d.progress(int(done.Add(1)), len(files))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := docs[:0]
	for i, doc := range docs {
		if loaded[i] {
			kept = append(kept, doc)
		}
	}
	docs = kept

	d.logger.Info("loaded documents", zap.String("root", root), zap.Int("documents", len(docs)))
	return docs, nil
}

func (d *DirectoryLoader) loaderFor(relPath string) port.FileLoader {
	for _, b := range d.bindings {
		if matched, err := doublestar.Match(b.pattern, relPath); err == nil && matched {
			return b.loader
		}
	}
	d.logger.Debug("no loader for file", zap.String("path", relPath))
	return nil
}
