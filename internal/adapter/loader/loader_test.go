package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/adapter/loader"
	"ragpipe/internal/domain"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

type recordingLoader struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingLoader) Load(_ context.Context, path string) (domain.Document, error) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	return domain.NewDocument(path, "recorded"), nil
}

func TestDirectoryLoader_LoadsBoundFilesInOrder(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.md", "# A\r\nbody\r\n")
	b := writeFile(t, root, "sub/b.md", "# B")
	writeFile(t, root, "c.go", "package c")
	notes := writeFile(t, root, "notes.txt", "plain")

	l, err := loader.NewDirectoryLoader(
		loader.WithLoader("**/*.md", loader.NewMarkdownLoader()),
		loader.WithLoader("**/*.txt", loader.NewTextLoader()),
		loader.WithConcurrency(2),
	)
	require.NoError(t, err)

	docs, err := l.Load(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, a, docs[0].Path)
	assert.Equal(t, "# A\nbody\n", docs[0].Content)
	assert.Equal(t, notes, docs[1].Path)
	assert.Equal(t, "plain", docs[1].Content)
	assert.Equal(t, b, docs[2].Path)
}

func TestDirectoryLoader_FirstMatchingBindingWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "special.md", "x")
	writeFile(t, root, "plain.md", "y")

	special := &recordingLoader{}
	l, err := loader.NewDirectoryLoader(
		loader.WithLoader("special.md", special),
		loader.WithLoader("**/*.md", loader.NewTextLoader()),
	)
	require.NoError(t, err)

	docs, err := l.Load(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "y", docs[0].Content)
	assert.Equal(t, "recorded", docs[1].Content)
	assert.Len(t, special.paths, 1)
}

func TestDirectoryLoader_Excludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.md", "keep")
	writeFile(t, root, "drafts/skip.md", "skip")

	l, err := loader.NewDirectoryLoader(
		loader.WithLoader("**/*.md", loader.NewTextLoader()),
		loader.WithExcludes("drafts/**"),
	)
	require.NoError(t, err)

	docs, err := l.Load(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep", docs[0].Content)
}

func TestDirectoryLoader_Progress(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, root, name, name)
	}

	var mu sync.Mutex
	var calls []int
	l, err := loader.NewDirectoryLoader(
		loader.WithLoader("*.txt", loader.NewTextLoader()),
		loader.WithProgress(func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 3, total)
			calls = append(calls, done)
		}),
	)
	require.NoError(t, err)

	_, err = l.Load(context.Background(), root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3}, calls)
}

func TestDirectoryLoader_Errors(t *testing.T) {
	_, err := loader.NewDirectoryLoader()
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = loader.NewDirectoryLoader(loader.WithLoader("[", loader.NewTextLoader()))
	assert.ErrorIs(t, err, domain.ErrConfig)

	l, err := loader.NewDirectoryLoader(loader.WithLoader("**/*", loader.NewTextLoader()))
	require.NoError(t, err)
	_, err = l.Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestDirectoryLoader_InvalidUTF8(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bad.txt", string([]byte{0xff, 0xfe, 0x00}))

	l, err := loader.NewDirectoryLoader(loader.WithLoader("**/*.txt", loader.NewTextLoader()))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), root)
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"text", "markdown"} {
		l, err := loader.ByName(name)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
	_, err := loader.ByName("pdf")
	assert.ErrorIs(t, err, domain.ErrConfig)
}
