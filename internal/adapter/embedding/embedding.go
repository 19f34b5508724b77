// Package embedding provides the embedding providers behind port.Embedder.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Config selects and configures a provider. The API key is passed in
// explicitly; providers never read the environment.
type Config struct {
	Provider          string // "openai", "langchain", "mock"
	Model             string
	BaseURL           string
	APIKey            string
	Dimension         int
	BatchSize         int
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int // applied by New through WithRetry
	Logger            *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// New builds the configured provider, wrapped with retries when
// MaxRetries is positive.
func New(cfg Config) (port.Embedder, error) {
	var (
		embedder port.Embedder
		err      error
	)
	switch cfg.Provider {
	case "openai":
		embedder, err = NewOpenAIEmbedder(cfg)
	case "langchain":
		embedder, err = NewLangchainEmbedder(cfg)
	case "mock":
		embedder = NewMockEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries > 0 {
		retry := DefaultRetryConfig()
		retry.MaxAttempts = cfg.MaxRetries + 1
		embedder = WithRetry(embedder, retry, cfg.logger())
	}
	return embedder, nil
}

// embedOne embeds a single text through e.Embed.
func embedOne(ctx context.Context, e port.Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d embeddings for 1 input", domain.ErrProvider, len(vectors))
	}
	return vectors[0], nil
}
