// Package embedding turns chunk texts into vectors in rate-limited batches.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"spacepedia/internal/provider"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding call.
	DefaultBatchSize = 20
	// DefaultPause is the fixed delay between consecutive batches.
	DefaultPause = time.Second
	// DefaultBackoff is the extended wait before the single retry of a
	// failed batch.
	DefaultBackoff = 5 * time.Second
)

// Batcher embeds document texts in fixed-size batches, strictly
// sequentially, pausing between batches to respect provider rate limits.
// A failed batch is retried exactly once after an extended backoff; a second
// failure aborts the whole call. A batch call is an indivisible blocking
// unit, so cancellation is only checked between batches.
type Batcher struct {
	embedder  provider.Embedder
	batchSize int
	limiter   *rate.Limiter
	backoff   time.Duration
	logger    *slog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize sets the number of texts per embedding call.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithPause sets the fixed delay between batches.
func WithPause(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithBackoff sets the wait before retrying a failed batch.
func WithBackoff(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.backoff = d
		}
	}
}

// NewBatcher creates a Batcher over the given provider embedder.
func NewBatcher(e provider.Embedder, opts ...Option) *Batcher {
	b := &Batcher{
		embedder:  e,
		batchSize: DefaultBatchSize,
		limiter:   rate.NewLimiter(rate.Every(DefaultPause), 1),
		backoff:   DefaultBackoff,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmbedDocuments embeds texts for indexing. The result preserves input order
// and count; ceil(len(texts)/batchSize) provider calls are issued. On error
// the caller receives nothing: partial results are discarded since the
// owning document fails rather than partially indexing.
func (b *Batcher) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	totalBatches := (len(texts) + b.batchSize - 1) / b.batchSize
	b.logger.Info("embedding documents",
		"texts", len(texts), "batches", totalBatches, "batch_size", b.batchSize)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		batchNum := start/b.batchSize + 1

		got, err := b.embedBatchOnce(ctx, batch, batchNum)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d/%d: %w", batchNum, totalBatches, err)
		}
		vectors = append(vectors, got...)
	}

	return vectors, nil
}

// embedBatchOnce issues one batch call, retrying a single time after backoff.
func (b *Batcher) embedBatchOnce(ctx context.Context, batch []string, batchNum int) ([][]float32, error) {
	got, err := b.embedder.EmbedBatch(ctx, batch, provider.TaskDocument)
	if err == nil {
		return checkCount(got, len(batch))
	}

	b.logger.Warn("embedding batch failed, retrying after backoff",
		"batch", batchNum, "backoff", b.backoff, "error", err)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(b.backoff):
	}

	got, err = b.embedder.EmbedBatch(ctx, batch, provider.TaskDocument)
	if err != nil {
		return nil, fmt.Errorf("retry failed: %w", err)
	}
	return checkCount(got, len(batch))
}

func checkCount(got [][]float32, want int) ([][]float32, error) {
	if len(got) != want {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(got), want)
	}
	return got, nil
}

// EmbedQuery embeds a single query text in query-optimized mode.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	got, err := b.embedder.EmbedBatch(ctx, []string{text}, provider.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(got) != 1 {
		return nil, fmt.Errorf("provider returned %d vectors for one query", len(got))
	}
	return got[0], nil
}

// Dimension returns the provider's declared vector dimension.
func (b *Batcher) Dimension() int { return b.embedder.Dimension() }
