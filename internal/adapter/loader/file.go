// Package loader turns files into Documents.
package loader

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"ragpipe/internal/adapter/fs"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// TextLoader reads a UTF-8 text file as-is.
type TextLoader struct{}

func NewTextLoader() *TextLoader { return &TextLoader{} }

func (l *TextLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	content, err := fs.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	if !utf8.ValidString(content) {
		return domain.Document{}, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrIO, path)
	}
	return domain.NewDocument(path, content), nil
}

// MarkdownLoader reads a markdown file and normalizes line endings so
// heading and paragraph boundaries are seen by the splitter.
type MarkdownLoader struct {
	text TextLoader
}

func NewMarkdownLoader() *MarkdownLoader { return &MarkdownLoader{} }

func (l *MarkdownLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	doc, err := l.text.Load(ctx, path)
	if err != nil {
		return doc, err
	}
	doc.Content = strings.ReplaceAll(doc.Content, "\r\n", "\n")
	return doc, nil
}

// ByName returns the file loader registered under name.
func ByName(name string) (port.FileLoader, error) {
	switch name {
	case "text":
		return NewTextLoader(), nil
	case "markdown":
		return NewMarkdownLoader(), nil
	default:
		return nil, fmt.Errorf("%w: unknown loader %q", domain.ErrConfig, name)
	}
}
