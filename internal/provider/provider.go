// Package provider abstracts the generative and embedding backends behind
// capability interfaces. Concrete implementations (Gemini, Groq) are selected
// once at construction time via the factory functions; call sites never
// dispatch on provider names.
package provider

import (
	"context"
	"fmt"
)

// EmbedTask selects the embedding mode for providers that distinguish
// document indexing from query lookup.
type EmbedTask string

const (
	// TaskDocument optimizes embeddings for storage and later retrieval.
	TaskDocument EmbedTask = "retrieval_document"
	// TaskQuery optimizes embeddings for search queries.
	TaskQuery EmbedTask = "retrieval_query"
)

// Generator produces a single non-streaming completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder converts a batch of texts into fixed-dimension vectors. The
// returned slice preserves input order and count. Callers keep batches at or
// under the provider's batch limit; sizing and pacing live in
// internal/embedding.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error)

	// Dimension returns the provider's declared vector dimension.
	Dimension() int
}

// GeneratorConfig selects and configures the generation backend.
type GeneratorConfig struct {
	Provider string // "gemini" or "groq"
	APIKey   string
	Model    string
}

// EmbedderConfig configures the embedding backend.
type EmbedderConfig struct {
	APIKey string
	Model  string
}

// NewGenerator constructs the configured generation backend.
func NewGenerator(ctx context.Context, cfg GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "groq":
		return NewGroq(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider %q (supported: gemini, groq)", cfg.Provider)
	}
}

// NewEmbedder constructs the embedding backend. Embeddings are Gemini-only;
// the generation provider choice does not affect them.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (Embedder, error) {
	return NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model)
}
