package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultGeminiModel      = "gemini-1.5-flash"
	defaultGeminiEmbedModel = "text-embedding-004"

	// text-embedding-004 produces 768-dimension vectors.
	geminiEmbedDimension = 768
)

// Gemini generates completions via the Google Generative Language API.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// Compile-time check that Gemini implements Generator.
var _ Generator = (*Gemini)(nil)

// NewGemini creates a Gemini generator. An empty model selects the default.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, model: client.GenerativeModel(model)}, nil
}

// Generate returns a single non-streaming completion for the prompt.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", wrapGeminiErr(err)
	}

	var parts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				parts = append(parts, string(text))
			}
		}
	}
	if len(parts) == 0 {
		return "", &ProviderError{Provider: "gemini", Err: errors.New("empty completion response")}
	}
	return strings.Join(parts, "\n"), nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error { return g.client.Close() }

// GeminiEmbedder produces embeddings via the Gemini embedding API. The
// document and query task types map to Gemini's retrieval-optimized modes.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a GeminiEmbedder. An empty model selects the
// default text-embedding-004.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required for embeddings")
	}
	if model == "" {
		model = defaultGeminiEmbedModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// EmbedBatch embeds texts in one batched API call, preserving input order.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	if task == TaskQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	}

	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, wrapGeminiErr(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &ProviderError{
			Provider: "gemini",
			Err:      fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts)),
		}
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Dimension returns the fixed vector dimension of the embedding model.
func (e *GeminiEmbedder) Dimension() int { return geminiEmbedDimension }

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error { return e.client.Close() }

// wrapGeminiErr classifies an API error into the provider error taxonomy.
func wrapGeminiErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &RateLimitError{Provider: "gemini", Err: err}
	}
	// The SDK sometimes surfaces quota exhaustion as a gRPC status string.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "quota") {
		return &RateLimitError{Provider: "gemini", Err: err}
	}
	return &ProviderError{Provider: "gemini", Err: err}
}
