// Package chunker splits normalized document text into overlapping segments
// sized for embedding.
package chunker

import (
	"strings"

	"github.com/google/uuid"

	"spacepedia/internal/document"
)

// DefaultChunkSize is the default target chunk size in characters.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of overlapping characters between
// consecutive chunks.
const DefaultOverlap = 200

// separators is the cascading boundary preference: paragraph break, line
// break, sentence boundary, word boundary. A raw character cut is the final
// fallback when none occur in the window.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits text into chunks of at most the target size, cutting at the
// most semantically significant boundary available near the end of each
// window.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Split breaks text into overlapping segments. Each segment is at most the
// target size; each segment after the first starts exactly overlap
// characters before the previous cut, so consecutive segments share at least
// overlap characters.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	// A cut is only accepted past minCut so every chunk is longer than the
	// overlap and the window always advances.
	minCut := c.size / 2
	if minCut <= c.overlap {
		minCut = c.overlap + 1
	}

	var segments []string
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			segments = append(segments, text[start:])
			break
		}

		cut := c.findCut(text[start:end], minCut)
		segments = append(segments, text[start:start+cut])

		next := start + cut - c.overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}

	return segments
}

// findCut returns the cut position within window, preferring the latest
// occurrence of the strongest separator at or past minCut. The separator is
// kept at the end of the chunk. Falls back to a raw cut at the window end.
func (c *Chunker) findCut(window string, minCut int) int {
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := idx + len(sep)
		if cut >= minCut && cut <= len(window) {
			return cut
		}
	}
	return len(window)
}

// Chunk splits the document's normalized content and attaches per-chunk
// metadata merged from the parent document. Offsets are recovered by
// forward-searching for each segment from the previous segment's start
// position; with overlap in play they can appear to regress and are a
// best-effort debugging aid, not an exact span guarantee.
func (c *Chunker) Chunk(doc *document.Document) []document.Chunk {
	if doc.Content == "" {
		return nil
	}

	segments := c.Split(doc.Content)
	chunks := make([]document.Chunk, 0, len(segments))

	searchFrom := 0
	for _, text := range segments {
		start := strings.Index(doc.Content[searchFrom:], text)
		if start < 0 {
			start = searchFrom
		} else {
			start += searchFrom
		}
		// Track the start (not end) so the next overlapping segment is
		// still findable.
		searchFrom = start

		meta := map[string]any{
			"source": doc.URL,
			"title":  doc.Title,
			"doc_id": doc.ID,
		}
		for k, v := range doc.Metadata {
			meta[k] = v
		}

		chunks = append(chunks, document.Chunk{
			ID:        uuid.New().String(),
			Text:      text,
			StartChar: start,
			EndChar:   start + len(text),
			Metadata:  meta,
		})
	}

	return chunks
}
