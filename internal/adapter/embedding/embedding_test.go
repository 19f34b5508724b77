package embedding_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/adapter/embedding"
	"ragpipe/internal/adapter/vecmath"
	"ragpipe/internal/domain"
)

type fakeAPI struct {
	dimension int
	calls     atomic.Int32
	drop      bool // answer with one embedding too few
	inOrder   bool // list data in input order instead of reversed
	status    int
}

// ServeHTTP answers with vectors whose first component is the input
// length, listed in reverse order unless inOrder is set.
func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
		return
	}

	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	n := len(req.Input)
	if f.drop {
		n--
	}
	data := make([]item, n)
	for i := 0; i < n; i++ {
		v := make([]float32, f.dimension)
		v[0] = float32(len(req.Input[i]))
		pos := n - 1 - i
		if f.inOrder {
			pos = i
		}
		data[pos] = item{Object: "embedding", Embedding: v, Index: i}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
}

func newServer(t *testing.T, api *fakeAPI) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedder_OrderAndBatching(t *testing.T) {
	api := &fakeAPI{dimension: 3}
	srv := newServer(t, api)

	e, err := embedding.NewOpenAIEmbedder(embedding.Config{
		Model: "test-model", BaseURL: srv.URL, APIKey: "k", Dimension: 3, BatchSize: 2,
	})
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Len(t, v, 3)
		assert.EqualValues(t, len(texts[i]), v[0], "vector %d out of order", i)
	}
	assert.EqualValues(t, 3, api.calls.Load())
}

func TestOpenAIEmbedder_EmptyInputMakesNoCall(t *testing.T) {
	api := &fakeAPI{dimension: 3}
	srv := newServer(t, api)

	e, err := embedding.NewOpenAIEmbedder(embedding.Config{Model: "m", BaseURL: srv.URL, Dimension: 3})
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, api.calls.Load())
}

func TestOpenAIEmbedder_EmbedOne(t *testing.T) {
	srv := newServer(t, &fakeAPI{dimension: 2})

	e, err := embedding.NewOpenAIEmbedder(embedding.Config{Model: "m", BaseURL: srv.URL, Dimension: 2})
	require.NoError(t, err)

	v, err := e.EmbedOne(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0}, v)
}

func TestOpenAIEmbedder_ProviderErrors(t *testing.T) {
	tests := map[string]*fakeAPI{
		"count mismatch":  {dimension: 2, drop: true},
		"http error":      {dimension: 2, status: http.StatusInternalServerError},
		"wrong dimension": {dimension: 5},
	}
	for name, api := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newServer(t, api)
			e, err := embedding.NewOpenAIEmbedder(embedding.Config{Model: "m", BaseURL: srv.URL, Dimension: 2})
			require.NoError(t, err)

			_, err = e.Embed(context.Background(), []string{"x", "y"})
			assert.ErrorIs(t, err, domain.ErrProvider)
		})
	}
}

func TestOpenAIEmbedder_Config(t *testing.T) {
	_, err := embedding.NewOpenAIEmbedder(embedding.Config{Model: "text-embedding-3-small"})
	assert.ErrorIs(t, err, domain.ErrConfig, "default endpoint needs a key")

	_, err = embedding.NewOpenAIEmbedder(embedding.Config{Model: "custom", BaseURL: "http://localhost:1"})
	assert.ErrorIs(t, err, domain.ErrConfig, "unknown model needs an explicit dimension")

	e, err := embedding.NewOpenAIEmbedder(embedding.Config{Model: "text-embedding-3-large", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 3072, e.Dimension())
	assert.Equal(t, "text-embedding-3-large", e.ModelName())
}

func TestOpenAIEmbedder_RateLimitHonoursContext(t *testing.T) {
	srv := newServer(t, &fakeAPI{dimension: 1})
	e, err := embedding.NewOpenAIEmbedder(embedding.Config{
		Model: "m", BaseURL: srv.URL, Dimension: 1, BatchSize: 1, RequestsPerSecond: 0.001,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = e.Embed(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestLangchainEmbedder(t *testing.T) {
	api := &fakeAPI{dimension: 4, inOrder: true}
	srv := newServer(t, api)

	e, err := embedding.NewLangchainEmbedder(embedding.Config{
		Model: "test-model", BaseURL: srv.URL, APIKey: "k", Dimension: 4,
	})
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.EqualValues(t, 1, vectors[0][0])
	assert.EqualValues(t, 3, vectors[1][0])

	empty, err := e.Embed(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = embedding.NewLangchainEmbedder(embedding.Config{Model: "m", Dimension: 4})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestMockEmbedder(t *testing.T) {
	e := embedding.NewMockEmbedder(32)
	ctx := context.Background()

	a, err := e.EmbedOne(ctx, "the quick brown fox")
	require.NoError(t, err)
	again, err := e.EmbedOne(ctx, "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Len(t, a, 32)

	near, _ := e.EmbedOne(ctx, "quick brown fox jumps")
	far, _ := e.EmbedOne(ctx, "zebra umbrella")
	assert.Greater(t, vecmath.Cosine(a, near), vecmath.Cosine(a, far))

	vectors, err := e.Embed(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestMockEmbedder_TextWithoutWords(t *testing.T) {
	e := embedding.NewMockEmbedder(8)
	v, err := e.EmbedOne(context.Background(), "--- +++ @@")
	require.NoError(t, err)
	assert.False(t, vecmath.IsZero(v))
	assert.InDelta(t, 1.0, vecmath.Cosine(v, v), 1e-9)
}

type flakyEmbedder struct {
	*embedding.MockEmbedder
	failures int
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, domain.ErrProvider
	}
	return f.MockEmbedder.Embed(ctx, texts)
}

func (f *flakyEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func fastRetry(attempts int) embedding.RetryConfig {
	return embedding.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func TestWithRetry_RecoversAfterFailures(t *testing.T) {
	flaky := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), failures: 2}
	e := embedding.WithRetry(flaky, fastRetry(3), nil)

	vectors, err := e.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 8, e.Dimension())
}

func TestWithRetry_GivesUp(t *testing.T) {
	flaky := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), failures: 10}
	e := embedding.WithRetry(flaky, fastRetry(2), nil)

	_, err := e.EmbedOne(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, 2, flaky.calls)
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	flaky := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), failures: 10}
	e := embedding.WithRetry(flaky, fastRetry(5), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 1, flaky.calls)
}

func TestNew(t *testing.T) {
	e, err := embedding.New(embedding.Config{Provider: "mock", Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dimension())

	e, err = embedding.New(embedding.Config{Provider: "mock", Dimension: 16, MaxRetries: 2})
	require.NoError(t, err)
	_, ok := e.(*embedding.Retrying)
	assert.True(t, ok)

	_, err = embedding.New(embedding.Config{Provider: "voyage"})
	assert.True(t, errors.Is(err, domain.ErrConfig))
}
