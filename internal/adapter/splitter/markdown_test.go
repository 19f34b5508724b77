package splitter_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/adapter/splitter"
	"ragpipe/internal/domain"
)

func TestMarkdown_SplitsAtHeadings(t *testing.T) {
	s, err := splitter.NewMarkdown(splitter.WithChunkSize(12))
	require.NoError(t, err)

	chunks := s.SplitText("# A\naaaa\n# B\nbbbb\n")
	assert.Equal(t, []string{"# A\naaaa", "\n# B\nbbbb\n"}, chunks)
}

func TestMarkdown_SubHeadingsBeforeParagraphs(t *testing.T) {
	s, err := splitter.NewMarkdown(splitter.WithChunkSize(30))
	require.NoError(t, err)

	text := "intro line\n## Setup\nrun it\n\nthen more\n## Usage\ncall it"
	chunks := s.SplitText(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "intro line", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], "\n## Setup"))
	assert.True(t, strings.HasPrefix(chunks[2], "\n## Usage"))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestMarkdown_IgnoresSeparatorOverride(t *testing.T) {
	s, err := splitter.NewMarkdown(splitter.WithChunkSize(12), splitter.WithSeparators())
	require.NoError(t, err)

	assert.Equal(t, []string{"# A\naaaa", "\n# B\nbbbb\n"}, s.SplitText("# A\naaaa\n# B\nbbbb\n"))
}

func TestMarkdown_LargeAndSmallDocuments(t *testing.T) {
	s, err := splitter.NewMarkdown(splitter.WithChunkSize(1000), splitter.WithChunkOverlap(100))
	require.NoError(t, err)

	small := strings.Repeat("x", 49) + "\n"
	var large strings.Builder
	for large.Len() < 5000 {
		large.WriteString("## Section\n\nSome words about the section. More words follow here!\n\n")
	}
	largeText := large.String()[:5000]

	chunks, err := s.SplitDocuments([]domain.Document{
		domain.NewDocument("small.md", small),
		domain.NewDocument("large.md", largeText),
	})
	require.NoError(t, err)

	var smallChunks, largeChunks []string
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 1000)
		switch c.Path {
		case "small.md":
			smallChunks = append(smallChunks, c.Content)
		case "large.md":
			largeChunks = append(largeChunks, c.Content)
		}
	}

	assert.Len(t, smallChunks, 1)
	assert.GreaterOrEqual(t, len(largeChunks), 5)
	for i := 1; i < len(largeChunks); i++ {
		prev := []rune(largeChunks[i-1])
		n := overlapLen(largeChunks[i-1], 100)
		assert.Equal(t, string(prev[len(prev)-n:]), string([]rune(largeChunks[i])[:n]))
	}
}
