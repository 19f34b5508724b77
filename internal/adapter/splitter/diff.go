package splitter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sourcegraph/go-diff/diff"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// DiffSplitter splits unified diffs patch by patch. Patches whose old or
// new path matches a skip pattern are dropped; the rest are re-serialized
// and hard-cut by a TextSplitter with no separators.
type DiffSplitter struct {
	text   *TextSplitter
	skips  []string
	logger *zap.Logger
}

// NewDiff creates a diff-aware splitter. The chunk size defaults to
// DefaultDiffChunkSize.
func NewDiff(opts ...Option) (*DiffSplitter, error) {
	o, err := buildOptions(DefaultDiffChunkSize, opts)
	if err != nil {
		return nil, err
	}
	for _, p := range o.skipPatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: invalid skip pattern %q", domain.ErrConfig, p)
		}
	}

	text, err := NewText(
		WithChunkSize(o.chunkSize),
		WithChunkOverlap(o.chunkOverlap),
		WithSeparators(),
		WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	return &DiffSplitter{
		text:   text,
		skips:  o.skipPatterns,
		logger: o.logger,
	}, nil
}

// SplitDocuments parses each document as a multi-file unified diff.
// Content that does not parse, or holds no file patch, fails with ErrParse.
func (s *DiffSplitter) SplitDocuments(docs []domain.Document) ([]domain.Document, error) {
	var patches []domain.Document
	for _, doc := range docs {
		kept, err := s.patches(doc)
		if err != nil {
			return nil, err
		}
		patches = append(patches, kept...)
	}
	return s.text.SplitDocuments(patches)
}

func (s *DiffSplitter) patches(doc domain.Document) ([]domain.Document, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(doc.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, doc.Path, err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("%w: %s: no file patches found", domain.ErrParse, doc.Path)
	}

	var kept []domain.Document
	for _, fd := range fileDiffs {
		if pattern, ok := s.skipMatch(fd); ok {
			s.logger.Info("skipping patch",
				zap.String("source", doc.Path),
				zap.String("old_path", fd.OrigName),
				zap.String("new_path", fd.NewName),
				zap.String("pattern", pattern))
			continue
		}

		out, err := diff.PrintFileDiff(fd)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: print patch %s: %v", domain.ErrParse, doc.Path, fd.NewName, err)
		}
		kept = append(kept, domain.NewDocument(doc.Path, string(out)))
	}
	return kept, nil
}

func (s *DiffSplitter) skipMatch(fd *diff.FileDiff) (string, bool) {
	for _, pattern := range s.skips {
		for _, name := range []string{fd.OrigName, fd.NewName} {
			if name == "" {
				continue
			}
			if matched, err := doublestar.Match(pattern, name); err == nil && matched {
				return pattern, true
			}
		}
	}
	return "", false
}
