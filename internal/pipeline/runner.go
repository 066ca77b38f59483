package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"spacepedia/internal/document"
)

// defaultDelay is the politeness pause between sequential fetches.
const defaultDelay = 2 * time.Second

// Candidate is one page entry from a candidates file.
type Candidate struct {
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// Candidates maps a category name to the pages filed under it.
type Candidates map[string][]Candidate

// LoadCandidates reads a candidates file from disk.
func LoadCandidates(path string) (Candidates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidates file: %w", err)
	}
	var c Candidates
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding candidates file %s: %w", path, err)
	}
	return c, nil
}

// Report summarizes one batch run.
type Report struct {
	Processed int
	Failed    int
}

// Runner ingests a candidates file document by document.
type Runner struct {
	processor *Processor
	delay     time.Duration
	workers   int
	logger    *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDelay sets the pause between documents. Only applies to sequential runs.
func WithDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.delay = d }
}

// WithWorkers enables concurrent ingestion with at most n documents in
// flight. n <= 1 keeps the sequential, politeness-delayed behavior.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) { r.workers = n }
}

// NewRunner creates a Runner around the given processor.
func NewRunner(p *Processor, opts ...RunnerOption) *Runner {
	r := &Runner{
		processor: p,
		delay:     defaultDelay,
		workers:   1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run ingests every candidate. Per-document failures are counted, not
// fatal; the run only aborts when the context is canceled.
func (r *Runner) Run(ctx context.Context, candidates Candidates) (Report, error) {
	docs := buildDocuments(candidates)
	r.logger.Info("starting batch ingestion", "documents", len(docs), "workers", r.workers)

	if r.workers > 1 {
		return r.runConcurrent(ctx, docs)
	}
	return r.runSequential(ctx, docs)
}

func (r *Runner) runSequential(ctx context.Context, docs []*document.Document) (Report, error) {
	var rep Report
	for i, doc := range docs {
		if i > 0 && r.delay > 0 {
			select {
			case <-ctx.Done():
				return rep, ctx.Err()
			case <-time.After(r.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := r.processor.Process(ctx, doc); err != nil {
			rep.Failed++
			continue
		}
		rep.Processed++
	}
	return rep, nil
}

func (r *Runner) runConcurrent(ctx context.Context, docs []*document.Document) (Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	results := make([]error, len(docs))
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = err
				return err
			}
			// Failures are recorded per document, never propagated, so
			// one bad page cannot cancel the rest of the batch.
			results[i] = r.processor.Process(gctx, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var rep Report
	for _, err := range results {
		if err != nil {
			rep.Failed++
		} else {
			rep.Processed++
		}
	}
	return rep, nil
}

// buildDocuments expands the candidates map into pending documents with
// category and tag metadata attached. Categories are visited in sorted
// order so runs are deterministic.
func buildDocuments(candidates Candidates) []*document.Document {
	categories := make([]string, 0, len(candidates))
	for cat := range candidates {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var docs []*document.Document
	for _, cat := range categories {
		for _, page := range candidates[cat] {
			t := document.TypeWebPage
			if strings.HasSuffix(strings.ToLower(page.URL), ".pdf") {
				t = document.TypePDF
			}
			doc := document.New(page.URL, t)
			doc.Title = page.Title
			doc.Metadata["category"] = cat
			if len(page.Tags) > 0 {
				// Kept as a list; the index flattens it at persistence time.
				doc.Metadata["tags"] = page.Tags
			}
			docs = append(docs, doc)
		}
	}
	return docs
}
