package embedding

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ragpipe/internal/port"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Initial delay between attempts
	MaxDelay    time.Duration // Maximum delay between attempts
	Multiplier  float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns the backoff used when retries are enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}
}

// Retrying decorates an Embedder with retries. Providers never retry on
// their own; callers opt in by wrapping them.
type Retrying struct {
	next   port.Embedder
	config RetryConfig
	logger *zap.Logger
}

// WithRetry wraps e so failed calls are retried with backoff.
func WithRetry(e port.Embedder, config RetryConfig, logger *zap.Logger) *Retrying {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: e, config: config, logger: logger}
}

func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return retryWithBackoff(ctx, r.config, r.logger, func() ([][]float32, error) {
		return r.next.Embed(ctx, texts)
	})
}

func (r *Retrying) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return retryWithBackoff(ctx, r.config, r.logger, func() ([]float32, error) {
		return r.next.EmbedOne(ctx, text)
	})
}

func (r *Retrying) Dimension() int    { return r.next.Dimension() }
func (r *Retrying) ModelName() string { return r.next.ModelName() }

// retryWithBackoff runs fn until it succeeds or attempts run out. It
// stops early when ctx is done.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, logger *zap.Logger, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		logger.Warn("embedding attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * config.Multiplier)
			if config.MaxDelay > 0 && backoff > config.MaxDelay {
				backoff = config.MaxDelay
			}
		}
	}

	return zero, lastErr
}
