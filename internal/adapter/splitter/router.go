package splitter

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Route sends documents whose path matches Pattern to Splitter.
type Route struct {
	Pattern  string
	Splitter port.Splitter
}

// Router splits each document with the splitter of the first route whose
// pattern matches the document path relative to root. Unmatched documents
// go to the fallback. Chunks keep the order of their source documents.
type Router struct {
	root     string
	fallback port.Splitter
	routes   []Route
}

func NewRouter(root string, fallback port.Splitter, routes ...Route) (*Router, error) {
	if fallback == nil {
		return nil, fmt.Errorf("%w: router needs a fallback splitter", domain.ErrConfig)
	}
	for _, r := range routes {
		if !doublestar.ValidatePattern(r.Pattern) {
			return nil, fmt.Errorf("%w: invalid splitter pattern %q", domain.ErrConfig, r.Pattern)
		}
		if r.Splitter == nil {
			return nil, fmt.Errorf("%w: no splitter for pattern %q", domain.ErrConfig, r.Pattern)
		}
	}
	return &Router{root: root, fallback: fallback, routes: routes}, nil
}

func (r *Router) SplitDocuments(docs []domain.Document) ([]domain.Document, error) {
	var chunks []domain.Document
	for _, doc := range docs {
		out, err := r.splitterFor(doc.Path).SplitDocuments([]domain.Document{doc})
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, out...)
	}
	return chunks, nil
}

func (r *Router) splitterFor(path string) port.Splitter {
	rel := path
	if r.root != "" {
		if p, err := filepath.Rel(r.root, path); err == nil {
			rel = p
		}
	}
	rel = filepath.ToSlash(rel)
	for _, route := range r.routes {
		if matched, err := doublestar.Match(route.Pattern, rel); err == nil && matched {
			return route.Splitter
		}
	}
	return r.fallback
}
