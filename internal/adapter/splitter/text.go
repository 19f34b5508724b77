package splitter

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// TextSplitter is the recursive plain-text splitter.
type TextSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	logger       *zap.Logger
}

// NewText creates a plain-text splitter. Without WithSeparators it uses
// DefaultSeparators.
func NewText(opts ...Option) (*TextSplitter, error) {
	o, err := buildOptions(DefaultChunkSize, opts)
	if err != nil {
		return nil, err
	}
	seps := DefaultSeparators
	if o.separatorsSet {
		seps = o.separators
	}
	return &TextSplitter{
		chunkSize:    o.chunkSize,
		chunkOverlap: o.chunkOverlap,
		separators:   seps,
		logger:       o.logger,
	}, nil
}

func (s *TextSplitter) ChunkSize() int    { return s.chunkSize }
func (s *TextSplitter) ChunkOverlap() int { return s.chunkOverlap }

// SplitDocuments splits every document in order. Chunks keep the path of
// their source document; empty documents produce no chunks.
func (s *TextSplitter) SplitDocuments(docs []domain.Document) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range docs {
		chunks := s.SplitText(doc.Content)
		for _, c := range chunks {
			out = append(out, domain.NewDocument(doc.Path, c))
		}
		s.logger.Debug("split document",
			zap.String("path", doc.Path),
			zap.Int("chars", utf8.RuneCountInString(doc.Content)),
			zap.Int("chunks", len(chunks)))
	}
	return out, nil
}

// SplitText splits text into chunks of at most ChunkSize characters.
// Each chunk after the first starts with the last ChunkOverlap characters
// of the chunk before it.
func (s *TextSplitter) SplitText(text string) []string {
	if text == "" {
		return nil
	}

	budget := s.chunkSize - s.chunkOverlap
	pieces := splitRecursive(text, s.separators, budget)
	chunks := mergePieces(pieces, budget)

	if s.chunkOverlap == 0 {
		return chunks
	}
	for i := 1; i < len(chunks); i++ {
		chunks[i] = lastRunes(chunks[i-1], s.chunkOverlap) + chunks[i]
	}
	return chunks
}

// splitRecursive cuts text into pieces of at most budget characters whose
// concatenation is text.
func splitRecursive(text string, separators []string, budget int) []string {
	if utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}

	for i, sep := range separators {
		if sep == "" {
			break
		}
		if !strings.Contains(text, sep) {
			continue
		}

		var pieces []string
		for _, piece := range splitKeep(text, sep) {
			if utf8.RuneCountInString(piece) <= budget {
				pieces = append(pieces, piece)
				continue
			}
			pieces = append(pieces, splitRecursive(piece, separators[i+1:], budget)...)
		}
		return pieces
	}

	return hardCut(text, budget)
}

// splitKeep splits text at every occurrence of sep, keeping sep in the
// pieces. Separators that open a block ("\n# ") start the following
// piece, all others end the preceding one.
func splitKeep(text, sep string) []string {
	leading := opensBlock(sep)

	var cuts []int
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], sep)
		if i < 0 {
			break
		}
		pos := start + i
		if leading {
			if pos > 0 {
				cuts = append(cuts, pos)
			}
		} else {
			cuts = append(cuts, pos+len(sep))
		}
		start = pos + len(sep)
	}

	pieces := make([]string, 0, len(cuts)+1)
	prev := 0
	for _, cut := range cuts {
		if cut > prev {
			pieces = append(pieces, text[prev:cut])
			prev = cut
		}
	}
	if prev < len(text) {
		pieces = append(pieces, text[prev:])
	}
	return pieces
}

func opensBlock(sep string) bool {
	return strings.HasPrefix(sep, "\n") && strings.TrimSpace(sep) != ""
}

// hardCut cuts text every budget characters.
func hardCut(text string, budget int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, len(runes)/budget+1)
	for start := 0; start < len(runes); start += budget {
		end := start + budget
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// mergePieces joins adjacent pieces while the result fits in budget.
func mergePieces(pieces []string, budget int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if currentLen > 0 && currentLen+n > budget {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(piece)
		currentLen += n
	}
	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
