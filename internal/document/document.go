// Package document defines the document and chunk types shared by the
// ingestion pipeline and the vector index.
package document

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Type classifies the source of a document.
type Type string

const (
	TypeWebPage    Type = "web_page"
	TypePDF        Type = "pdf"
	TypeArxivPaper Type = "arxiv_paper"
	TypeImage      Type = "image"
)

// Status tracks a document's position in the ingestion pipeline.
// A document only moves forward through the pipeline, or to StatusFailed
// from any non-terminal state. It never reverts.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCrawled    Status = "crawled"
	StatusParsed     Status = "parsed"
	StatusNormalized Status = "normalized"
	StatusVectorized Status = "vectorized"
	StatusFailed     Status = "failed"
)

// order maps each status to its pipeline position. Terminal states
// (vectorized, failed) are not valid sources for a forward transition.
var order = map[Status]int{
	StatusPending:    0,
	StatusCrawled:    1,
	StatusParsed:     2,
	StatusNormalized: 3,
	StatusVectorized: 4,
}

// Chunk is a bounded span of a document's normalized text, the unit stored
// and retrieved from the vector index.
type Chunk struct {
	ID   string
	Text string

	// StartChar and EndChar are best-effort offsets into the normalized
	// source text. Separators are consumed during splitting and overlap can
	// make offsets appear to regress, so these are a debugging aid only and
	// must not be used to reconstruct exact spans.
	StartChar int
	EndChar   int

	// Metadata is merged from the parent document (source, title, doc_id,
	// category, tags). Values may be nested; the index flattens them to
	// scalar strings before persisting.
	Metadata map[string]any
}

// Document is a single unit of ingested content moving through the pipeline.
// It is owned by the pipeline run that created it until indexed; afterwards
// its chunks live independently inside the vector index.
type Document struct {
	ID           string
	URL          string
	Title        string
	Type         Type
	RawContent   []byte
	Content      string // extracted, then normalized text
	Chunks       []Chunk
	SourceDomain string
	Metadata     map[string]any
	Status       Status
	ErrMessage   string
	ScrapedAt    time.Time
}

// New creates a pending document for the given URL. The source domain is
// derived from the URL's host; an unparseable URL leaves it empty.
func New(rawURL string, t Type) *Document {
	domain := ""
	if u, err := url.Parse(rawURL); err == nil {
		domain = u.Hostname()
	}
	return &Document{
		ID:           uuid.New().String(),
		URL:          rawURL,
		Type:         t,
		SourceDomain: domain,
		Metadata:     map[string]any{},
		Status:       StatusPending,
		ScrapedAt:    time.Now().UTC(),
	}
}

// Advance moves the document to the next status. The transition is ignored
// when it would move the document backwards or out of a terminal state.
func (d *Document) Advance(next Status) {
	cur, curOK := order[d.Status]
	nxt, nxtOK := order[next]
	if !curOK || !nxtOK || nxt <= cur {
		return
	}
	d.Status = next
}

// Fail marks the document failed with the captured error message. Terminal
// states are left untouched.
func (d *Document) Fail(err error) {
	if d.Terminal() {
		return
	}
	d.Status = StatusFailed
	if err != nil {
		d.ErrMessage = err.Error()
	}
}

// Terminal reports whether the document has reached a terminal status.
func (d *Document) Terminal() bool {
	return d.Status == StatusVectorized || d.Status == StatusFailed
}
