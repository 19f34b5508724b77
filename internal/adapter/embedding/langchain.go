package embedding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

// LangchainEmbedder embeds through langchaingo's OpenAI client.
type LangchainEmbedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *zap.Logger
}

// NewLangchainEmbedder creates a langchaingo-backed embedder. Unlike the
// library default, the token always comes from cfg.
func NewLangchainEmbedder(cfg Config) (*LangchainEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required for the langchain provider", domain.ErrConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", domain.ErrConfig)
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = modelDimensions[cfg.Model]
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: unknown dimension for model %s", domain.ErrConfig, cfg.Model)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(baseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create openai client: %v", domain.ErrConfig, err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	embedder, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create embedder: %v", domain.ErrConfig, err)
	}

	return &LangchainEmbedder{
		embedder:  embedder,
		model:     cfg.Model,
		dimension: dimension,
		logger:    cfg.logger(),
	}, nil
}

func (e *LangchainEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrProvider, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: expected dimension %d, got %d", domain.ErrProvider, e.dimension, len(v))
		}
	}

	e.logger.Debug("embedded texts", zap.String("model", e.model), zap.Int("texts", len(texts)))
	return vectors, nil
}

func (e *LangchainEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

func (e *LangchainEmbedder) Dimension() int {
	return e.dimension
}

func (e *LangchainEmbedder) ModelName() string {
	return e.model
}
