// Package evalset generates retrieval-evaluation test sets from indexed
// content: for a sample of stored chunks, a model is asked to produce a
// question answerable from the chunk together with the ground-truth answer.
package evalset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"spacepedia/internal/provider"
)

// DefaultSampleSize is how many stored chunks are sampled per run.
const DefaultSampleSize = 50

// Sampler provides stored chunk texts to build questions from.
type Sampler interface {
	SampleTexts(ctx context.Context, limit int) ([]string, error)
}

// Entry is one question in the generated test set.
type Entry struct {
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth"`
	Context     string `json:"context"`
}

// Generator builds test sets from sampled index content.
type Generator struct {
	sampler   Sampler
	generator provider.Generator
	logger    *slog.Logger
}

// New creates a test set Generator.
func New(sampler Sampler, gen provider.Generator) *Generator {
	return &Generator{sampler: sampler, generator: gen, logger: slog.Default()}
}

// Generate samples up to limit chunks and produces one entry per chunk.
// A chunk whose generation or parse fails is skipped with a warning; the
// run only fails when sampling itself does, or when every chunk failed.
func (g *Generator) Generate(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultSampleSize
	}
	texts, err := g.sampler.SampleTexts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("sampling indexed texts: %w", err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no indexed content to sample")
	}

	entries := make([]Entry, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := g.generateOne(ctx, text)
		if err != nil {
			g.logger.Warn("skipping chunk", "chunk", i, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("all %d sampled chunks failed generation", len(texts))
	}

	g.logger.Info("test set generated", "entries", len(entries), "sampled", len(texts))
	return entries, nil
}

func (g *Generator) generateOne(ctx context.Context, text string) (Entry, error) {
	raw, err := g.generator.Generate(ctx, questionPrompt(text))
	if err != nil {
		return Entry{}, fmt.Errorf("generating question: %w", err)
	}

	var parsed struct {
		Question    string `json:"question"`
		GroundTruth string `json:"ground_truth"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return Entry{}, fmt.Errorf("decoding question response: %w", err)
	}
	if parsed.Question == "" || parsed.GroundTruth == "" {
		return Entry{}, fmt.Errorf("incomplete question response")
	}
	return Entry{Question: parsed.Question, GroundTruth: parsed.GroundTruth, Context: text}, nil
}

// WriteFile serializes the entries as indented JSON.
func WriteFile(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding test set: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing test set: %w", err)
	}
	return nil
}

func questionPrompt(text string) string {
	return "Based on the following text about space exploration, generate one specific question " +
		"that can be answered from the text alone, and its answer.\n\n" +
		"Return ONLY a JSON object with keys 'question' and 'ground_truth'.\n\n" +
		"TEXT:\n" + text
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
