package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/adapter/store"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// tableEmbedder maps known texts to fixed vectors.
type tableEmbedder struct {
	vectors map[string][]float32
	dim     int
	model   string
	calls   int
	err     error
}

func newTableEmbedder() *tableEmbedder {
	return &tableEmbedder{
		dim:   2,
		model: "table",
		vectors: map[string][]float32{
			"v1":    {1, 0},
			"v2":    {0, 1},
			"v3":    {0.9, 0.1},
			"query": {1, 0},
			"big":   {4, 0},
		},
	}
}

func (e *tableEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.vectors[t]
		if !ok {
			return nil, fmt.Errorf("%w: no vector for %q", domain.ErrProvider, t)
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *tableEmbedder) Dimension() int    { return e.dim }
func (e *tableEmbedder) ModelName() string { return e.model }

type backendCase struct {
	backend store.Backend
	path    func(dir string) string
	ordered bool // ties keep insertion order
	persist bool
}

var backends = []backendCase{
	{backend: store.BackendMemory, path: func(string) string { return "" }, ordered: true},
	{backend: store.BackendBolt, path: func(dir string) string { return filepath.Join(dir, "index.db") }, ordered: true, persist: true},
	{backend: store.BackendSQLite, path: func(dir string) string { return filepath.Join(dir, "index.sqlite") }, ordered: true, persist: true},
	{backend: store.BackendChromem, path: func(dir string) string { return filepath.Join(dir, "chromem") }, persist: true},
}

func openIndex(t *testing.T, bc backendCase, dir string) port.VectorIndex {
	t.Helper()
	idx, err := store.OpenIndex(store.IndexOptions{Backend: bc.backend, Path: bc.path(dir), Collection: "test"})
	require.NoError(t, err)
	return idx
}

func openStore(t *testing.T, bc backendCase, dir string, emb port.Embedder, opts ...store.Option) *store.Store {
	t.Helper()
	s := store.New(openIndex(t, bc, dir), emb, opts...)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func docs(contents ...string) []domain.Document {
	out := make([]domain.Document, len(contents))
	for i, c := range contents {
		out[i] = domain.NewDocument(c+".md", c)
	}
	return out
}

func TestStore_SimilarityOrdering(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, bc, t.TempDir(), newTableEmbedder())

			ids, err := s.AddDocuments(ctx, docs("v1", "v2", "v3"))
			require.NoError(t, err)
			require.Len(t, ids, 3)
			assert.NotEqual(t, ids[0], ids[1])

			results, err := s.SimilaritySearch(ctx, "query", 2)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "v1", results[0].Content)
			assert.Equal(t, "v1.md", results[0].Path)
			assert.Equal(t, ids[0], results[0].ID)
			assert.Equal(t, "v3", results[1].Content)
			assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

			all, err := s.SimilaritySearch(ctx, "query", 100)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			none, err := s.SimilaritySearch(ctx, "query", 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_TiesKeepInsertionOrder(t *testing.T) {
	for _, bc := range backends {
		if !bc.ordered {
			continue
		}
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			emb := newTableEmbedder()
			emb.vectors["a"] = []float32{1, 0}
			emb.vectors["b"] = []float32{2, 0}
			s := openStore(t, bc, t.TempDir(), emb)

			_, err := s.AddDocuments(ctx, docs("b", "a"))
			require.NoError(t, err)

			results, err := s.SimilaritySearch(ctx, "query", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"b", "a"}, []string{results[0].Content, results[1].Content})
		})
	}
}

func TestStore_EmbeddingFailureWritesNothing(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, bc, t.TempDir(), newTableEmbedder())

			_, err := s.AddDocuments(ctx, docs("v1", "unknown"))
			assert.ErrorIs(t, err, domain.ErrProvider)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_EmptyBatchSkipsProvider(t *testing.T) {
	emb := newTableEmbedder()
	s := openStore(t, backends[0], t.TempDir(), emb)

	ids, err := s.AddDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, emb.calls)
}

func TestStore_ProviderErrorsAreTagged(t *testing.T) {
	emb := newTableEmbedder()
	emb.err = errors.New("connection reset")
	s := openStore(t, backends[0], t.TempDir(), emb)

	_, err := s.AddDocuments(context.Background(), docs("v1"))
	assert.ErrorIs(t, err, domain.ErrProvider)

	_, err = s.SimilaritySearch(context.Background(), "query", 1)
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestStore_InnerProduct(t *testing.T) {
	for _, bc := range backends {
		if bc.backend == store.BackendChromem {
			continue
		}
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, bc, t.TempDir(), newTableEmbedder(), store.WithMetric(domain.MetricInnerProduct))

			_, err := s.AddDocuments(ctx, docs("v1", "big"))
			require.NoError(t, err)

			results, err := s.SimilaritySearch(ctx, "query", 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "big", results[0].Content)
			assert.InDelta(t, 4.0, results[0].Score, 1e-6)
		})
	}
}

func TestStore_ChromemRejectsInnerProduct(t *testing.T) {
	idx, err := store.OpenIndex(store.IndexOptions{Backend: store.BackendChromem})
	require.NoError(t, err)

	s := store.New(idx, newTableEmbedder(), store.WithMetric(domain.MetricInnerProduct))
	assert.ErrorIs(t, s.Init(context.Background()), domain.ErrStoreInit)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	for _, bc := range backends {
		if !bc.persist {
			continue
		}
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			first := store.New(openIndex(t, bc, dir), newTableEmbedder())
			require.NoError(t, first.Init(ctx))
			_, err := first.AddDocuments(ctx, docs("v1", "v2"))
			require.NoError(t, err)
			require.NoError(t, first.Close())

			second := openStore(t, bc, dir, newTableEmbedder())
			n, err := second.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			results, err := second.SimilaritySearch(ctx, "query", 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "v1", results[0].Content)
			assert.Equal(t, "v1.md", results[0].Path)
		})
	}
}

func TestStore_ReopenWithDifferentManifestFails(t *testing.T) {
	for _, bc := range backends {
		if !bc.persist {
			continue
		}
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			first := store.New(openIndex(t, bc, dir), newTableEmbedder())
			require.NoError(t, first.Init(ctx))
			require.NoError(t, first.Close())

			other := newTableEmbedder()
			other.dim = 3
			second := store.New(openIndex(t, bc, dir), other)
			t.Cleanup(func() { _ = second.Close() })
			assert.ErrorIs(t, second.Init(ctx), domain.ErrStoreInit)
		})
	}
}

func TestStore_InitIsIdempotent(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			s := openStore(t, bc, t.TempDir(), newTableEmbedder())
			assert.NoError(t, s.Init(context.Background()))
		})
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			emb := newTableEmbedder()
			emb.vectors["wide"] = []float32{1, 0, 0}
			s := openStore(t, bc, t.TempDir(), emb)

			_, err := s.AddDocuments(ctx, docs("v1", "wide"))
			assert.ErrorIs(t, err, domain.ErrStoreWrite)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			_, err = s.SearchVector(ctx, []float32{1, 0, 0}, 1)
			assert.ErrorIs(t, err, domain.ErrStoreQuery)
		})
	}
}

func initIndex(t *testing.T, bc backendCase, dir string) port.VectorIndex {
	t.Helper()
	idx := openIndex(t, bc, dir)
	require.NoError(t, idx.Init(context.Background(), domain.IndexManifest{Metric: domain.MetricCosine, Dimension: 2, Model: "table"}))
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func record(content string, v ...float32) domain.StoredRecord {
	return domain.StoredRecord{ID: uuid.New(), Path: content + ".md", Content: content, Vector: v}
}

func TestIndex_DuplicateIDRollsBackBatch(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			idx := initIndex(t, bc, t.TempDir())

			r1, r2 := record("v1", 1, 0), record("v2", 0, 1)
			err := idx.Insert(ctx, []domain.StoredRecord{r1, r2, r1})
			assert.ErrorIs(t, err, domain.ErrStoreWrite)

			n, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestIndex_DuplicateOfStoredIDKeepsExisting(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			ctx := context.Background()
			idx := initIndex(t, bc, t.TempDir())

			r1 := record("v1", 1, 0)
			require.NoError(t, idx.Insert(ctx, []domain.StoredRecord{r1}))

			err := idx.Insert(ctx, []domain.StoredRecord{record("v3", 0.9, 0.1), r1})
			assert.ErrorIs(t, err, domain.ErrStoreWrite)

			n, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			results, err := idx.Search(ctx, []float32{1, 0}, 5)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "v1", results[0].Content)
		})
	}
}

func TestIndex_CancelledInsertWritesNothing(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			idx := initIndex(t, bc, t.TempDir())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := idx.Insert(ctx, []domain.StoredRecord{record("v1", 1, 0), record("v2", 0, 1)})
			assert.ErrorIs(t, err, domain.ErrStoreWrite)

			n, err := idx.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_CancelledAddDocuments(t *testing.T) {
	for _, bc := range backends {
		t.Run(string(bc.backend), func(t *testing.T) {
			s := openStore(t, bc, t.TempDir(), newTableEmbedder())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			ids, err := s.AddDocuments(ctx, docs("v1", "v2", "v3"))
			assert.Error(t, err)
			assert.Nil(t, ids)

			n, err := s.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestChromem_ZeroVectors(t *testing.T) {
	ctx := context.Background()
	idx := initIndex(t, backendCase{backend: store.BackendChromem, path: func(string) string { return "" }}, "")

	err := idx.Insert(ctx, []domain.StoredRecord{record("v1", 1, 0), record("zero", 0, 0)})
	assert.ErrorIs(t, err, domain.ErrStoreWrite)
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, idx.Insert(ctx, []domain.StoredRecord{record("v1", 1, 0)}))
	_, err = idx.Search(ctx, []float32{0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrStoreQuery)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, backends[0], t.TempDir(), newTableEmbedder())
	_, err := s.AddDocuments(ctx, docs("v1"))
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Records: 1, Dimension: 2, Metric: "cosine", Model: "table"}, stats)
}

func TestOpenIndex_UnknownBackend(t *testing.T) {
	_, err := store.OpenIndex(store.IndexOptions{Backend: "qdrant"})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = store.OpenIndex(store.IndexOptions{Backend: store.BackendBolt})
	assert.ErrorIs(t, err, domain.ErrConfig)
}
