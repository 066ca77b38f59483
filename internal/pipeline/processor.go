// Package pipeline drives document ingestion end to end: fetch, extract,
// normalize, chunk, and index. Each document moves through the stages as a
// small state machine; the first stage failure marks it failed and halts
// its run without affecting other documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"spacepedia/internal/chunker"
	"spacepedia/internal/document"
	"spacepedia/internal/extract"
	"spacepedia/internal/fetch"
)

// Indexer is the write-side of the vector index the pipeline feeds.
type Indexer interface {
	Add(ctx context.Context, chunks []document.Chunk) error
}

// Processor runs a single document through the ingestion stages.
type Processor struct {
	fetcher fetch.Fetcher
	chunker *chunker.Chunker
	indexer Indexer
	logger  *slog.Logger
}

// NewProcessor wires a processor from its stage dependencies.
func NewProcessor(f fetch.Fetcher, c *chunker.Chunker, idx Indexer) *Processor {
	return &Processor{
		fetcher: f,
		chunker: c,
		indexer: idx,
		logger:  slog.Default(),
	}
}

// Process advances doc through fetch, extract, normalize, chunk, and index.
// On success the document ends vectorized with its chunks attached. On any
// stage failure the document is marked failed with the stage error recorded,
// and the same error is returned.
func (p *Processor) Process(ctx context.Context, doc *document.Document) error {
	if err := p.run(ctx, doc); err != nil {
		doc.Fail(err)
		p.logger.Error("document failed",
			"url", doc.URL, "status", doc.Status, "error", err)
		return err
	}
	return nil
}

func (p *Processor) run(ctx context.Context, doc *document.Document) error {
	res, err := p.fetcher.Fetch(ctx, doc.URL)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", doc.URL, err)
	}
	doc.RawContent = res.Body
	doc.Advance(document.StatusCrawled)

	if err := p.extract(doc, res); err != nil {
		return err
	}
	doc.Advance(document.StatusParsed)

	doc.Content = extract.Normalize(doc.Content)
	doc.Advance(document.StatusNormalized)

	doc.Chunks = p.chunker.Chunk(doc)
	if len(doc.Chunks) == 0 {
		return errors.New("no content to index")
	}

	if err := p.indexer.Add(ctx, doc.Chunks); err != nil {
		return fmt.Errorf("indexing %d chunks: %w", len(doc.Chunks), err)
	}
	doc.Advance(document.StatusVectorized)

	p.logger.Info("document indexed",
		"url", doc.URL, "title", doc.Title, "chunks", len(doc.Chunks))
	return nil
}

// extract picks the parser from the fetch result and fills doc.Content.
// The fetched title is kept only when the candidate list provided none.
func (p *Processor) extract(doc *document.Document, res *fetch.Result) error {
	if res.IsPDF() || doc.Type == document.TypePDF || doc.Type == document.TypeArxivPaper {
		text, err := extract.FromPDF(res.Body)
		if err != nil {
			return fmt.Errorf("extracting pdf %s: %w", doc.URL, err)
		}
		doc.Content = text
		return nil
	}

	title, text, err := extract.FromHTML(res.Body)
	if err != nil {
		return fmt.Errorf("extracting html %s: %w", doc.URL, err)
	}
	doc.Content = text
	if doc.Title == "" {
		doc.Title = strings.TrimSpace(title)
	}
	return nil
}
