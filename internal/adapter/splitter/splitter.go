// Package splitter breaks Documents into bounded-size chunks.
//
// All sizes are measured in Unicode code points. Every splitter delegates
// to TextSplitter, which recursively splits on an ordered separator list,
// greedily merges the pieces and then applies the configured overlap.
package splitter

import (
	"fmt"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Kind names a splitter variant.
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindDiff     Kind = "diff"
)

const (
	DefaultChunkSize     = 1000
	DefaultDiffChunkSize = 2000
)

// DefaultSeparators is the plain-text separator list, most semantic first.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

type options struct {
	chunkSize     int
	chunkOverlap  int
	separators    []string
	separatorsSet bool
	skipPatterns  []string
	logger        *zap.Logger
}

// Option configures a splitter.
type Option func(*options)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(o *options) { o.chunkSize = size }
}

// WithChunkOverlap sets how many trailing characters of a chunk are
// repeated at the start of the next one.
func WithChunkOverlap(overlap int) Option {
	return func(o *options) { o.chunkOverlap = overlap }
}

// WithSeparators replaces the text splitter's separator list. Calling it
// with no separators leaves only hard cuts.
func WithSeparators(separators ...string) Option {
	return func(o *options) {
		o.separators = append([]string{}, separators...)
		o.separatorsSet = true
	}
}

// WithSkipPatterns sets the glob patterns whose matching patches the diff
// splitter drops.
func WithSkipPatterns(patterns ...string) Option {
	return func(o *options) { o.skipPatterns = append([]string{}, patterns...) }
}

// WithLogger sets the logger used for split and skip events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(defaultSize int, opts []Option) (options, error) {
	o := options{chunkSize: defaultSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.chunkSize <= 0 {
		return o, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfig, o.chunkSize)
	}
	if o.chunkOverlap < 0 || o.chunkOverlap >= o.chunkSize {
		return o, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", domain.ErrConfig, o.chunkOverlap, o.chunkSize)
	}
	return o, nil
}

// New builds the splitter variant named by kind.
func New(kind Kind, opts ...Option) (port.Splitter, error) {
	switch kind {
	case KindText:
		return NewText(opts...)
	case KindMarkdown:
		return NewMarkdown(opts...)
	case KindDiff:
		return NewDiff(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown splitter kind %q", domain.ErrConfig, kind)
	}
}
