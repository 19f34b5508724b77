package cli

import (
	"context"

	"go.uber.org/zap"

	"ragpipe/config"
	"ragpipe/internal/adapter/cache"
	"ragpipe/internal/adapter/embedding"
	"ragpipe/internal/adapter/loader"
	"ragpipe/internal/adapter/splitter"
	"ragpipe/internal/adapter/store"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// newEmbedder builds the configured provider. The API key is resolved
// here so providers never look at the environment.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (port.Embedder, error) {
	ec := cfg.Embedding

	var apiKey string
	if ec.Provider != "mock" {
		var err error
		apiKey, err = ec.APIKey()
		if err != nil {
			return nil, err
		}
	}

	return embedding.New(embedding.Config{
		Provider:          ec.Provider,
		Model:             ec.Model,
		BaseURL:           ec.BaseURL,
		APIKey:            apiKey,
		Dimension:         ec.Dimension,
		BatchSize:         ec.BatchSize,
		Timeout:           ec.Timeout,
		RequestsPerSecond: ec.RequestsPerSecond,
		MaxRetries:        ec.MaxRetries,
		Logger:            logger,
	})
}

// OpenStore opens and initializes the vector store of the project at dir.
func OpenStore(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) (*store.Store, error) {
	metric, err := domain.ParseMetric(cfg.Store.Metric)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	index, err := store.OpenIndex(store.IndexOptions{
		Backend:    store.Backend(cfg.Store.Backend),
		Path:       cfg.StorePath(dir),
		Collection: cfg.Store.Collection,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	st := store.New(index, embedder, store.WithMetric(metric), store.WithLogger(logger))
	if err := st.Init(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newSplitter builds the configured splitter. kind overrides the
// configured kind when non-empty.
func newSplitter(cfg *config.Config, kind string, logger *zap.Logger) (port.Splitter, error) {
	sc := cfg.Splitter
	if kind == "" {
		kind = sc.Kind
	}

	opts := []splitter.Option{
		splitter.WithChunkOverlap(sc.ChunkOverlap),
		splitter.WithLogger(logger),
	}
	// The diff splitter has its own default size; only carry the
	// configured one when the configured kind is diff as well.
	if kind != string(splitter.KindDiff) || sc.Kind == kind {
		opts = append(opts, splitter.WithChunkSize(sc.ChunkSize))
	}
	if len(sc.Separators) > 0 {
		opts = append(opts, splitter.WithSeparators(sc.Separators...))
	}
	if len(sc.DiffSkips) > 0 {
		opts = append(opts, splitter.WithSkipPatterns(sc.DiffSkips...))
	}
	return splitter.New(splitter.Kind(kind), opts...)
}

// newRouter builds the configured splitter plus one route per loader
// binding that names its own splitter. Patterns match paths relative to
// root, as they do for loading.
func newRouter(cfg *config.Config, root string, logger *zap.Logger) (*splitter.Router, error) {
	fallback, err := newSplitter(cfg, "", logger)
	if err != nil {
		return nil, err
	}

	byKind := make(map[string]port.Splitter)
	var routes []splitter.Route
	for _, b := range cfg.Loader.Bindings {
		if b.Splitter == "" {
			continue
		}
		sp, ok := byKind[b.Splitter]
		if !ok {
			sp, err = newSplitter(cfg, b.Splitter, logger)
			if err != nil {
				return nil, err
			}
			byKind[b.Splitter] = sp
		}
		routes = append(routes, splitter.Route{Pattern: b.Pattern, Splitter: sp})
	}
	return splitter.NewRouter(root, fallback, routes...)
}

// newLoader builds the directory loader from the configured bindings.
func newLoader(cfg *config.Config, logger *zap.Logger, progress func(done, total int)) (*loader.DirectoryLoader, error) {
	opts := []loader.Option{
		loader.WithExcludes(cfg.Loader.Excludes...),
		loader.WithConcurrency(cfg.Loader.Concurrency),
		loader.WithLogger(logger),
	}
	for _, b := range cfg.Loader.Bindings {
		l, err := loader.ByName(b.Loader)
		if err != nil {
			return nil, err
		}
		opts = append(opts, loader.WithLoader(b.Pattern, l))
	}
	if progress != nil {
		opts = append(opts, loader.WithProgress(progress))
	}
	return loader.NewDirectoryLoader(opts...)
}

func newQueryCache(cfg *config.Config) *cache.QueryCache {
	return cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)
}

func topK(flag int, cfg *config.Config) int {
	if flag > 0 {
		return flag
	}
	return cfg.Retrieve.TopK
}
