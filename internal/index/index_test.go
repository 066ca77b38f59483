package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"spacepedia/internal/document"
)

// stubEmbedder maps each text to a fixed vector so distances are
// predictable. Unknown texts get a zero-seeded default.
type stubEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{}, dim: dim}
}

func (s *stubEmbedder) set(text string, seed float32) {
	v := make([]float32, s.dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	s.vectors[text] = v
}

func (s *stubEmbedder) lookup(text string) []float32 {
	if v, ok := s.vectors[text]; ok {
		return v
	}
	v := make([]float32, s.dim)
	for i := range v {
		v[i] = 0.5
	}
	return v
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.lookup(t)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.lookup(text), nil
}

func openTestIndex(t *testing.T, emb TextEmbedder) *Index {
	t.Helper()
	idx, err := Open(":memory:", emb)
	if err != nil {
		t.Fatalf("opening test index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func chunkWith(id, text string, meta map[string]any) document.Chunk {
	return document.Chunk{ID: id, Text: text, Metadata: meta}
}

func TestAddAndCount(t *testing.T) {
	emb := newStubEmbedder(8)
	idx := openTestIndex(t, emb)
	ctx := context.Background()

	chunks := []document.Chunk{
		chunkWith("c1", "Mars is red", map[string]any{"title": "Mars", "source": "u1", "doc_id": "d1"}),
		chunkWith("c2", "Mars has two moons", map[string]any{"title": "Mars", "source": "u1", "doc_id": "d1"}),
	}
	if err := idx.Add(ctx, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestSearch_AscendingDistance(t *testing.T) {
	emb := newStubEmbedder(8)
	emb.set("olympus mons is on mars", 0.10)
	emb.set("venus has thick clouds", 0.90)
	emb.set("the moon orbits earth", 0.50)
	emb.set("tallest mountain on mars", 0.11) // closest to the first text

	idx := openTestIndex(t, emb)
	ctx := context.Background()

	meta := map[string]any{"title": "T", "source": "s", "doc_id": "d"}
	chunks := []document.Chunk{
		chunkWith("mars", "olympus mons is on mars", meta),
		chunkWith("venus", "venus has thick clouds", meta),
		chunkWith("moon", "the moon orbits earth", meta),
	}
	if err := idx.Add(ctx, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := idx.Search(ctx, "tallest mountain on mars", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "mars" {
		t.Errorf("nearest = %q, want %q", results[0].ID, "mars")
	}
	for i := 0; i < len(results)-1; i++ {
		if results[i].Distance > results[i+1].Distance {
			t.Errorf("results not in ascending distance order: %f > %f", results[i].Distance, results[i+1].Distance)
		}
	}
	if results[0].Metadata["title"] != "T" {
		t.Errorf("metadata not round-tripped: %v", results[0].Metadata)
	}
}

func TestSearch_KLargerThanStore(t *testing.T) {
	emb := newStubEmbedder(4)
	idx := openTestIndex(t, emb)
	ctx := context.Background()

	if err := idx.Add(ctx, []document.Chunk{chunkWith("only", "single entry", nil)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := idx.Search(ctx, "anything", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := openTestIndex(t, newStubEmbedder(4))
	results, err := idx.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty index", len(results))
	}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	emb := newStubEmbedder(8)
	idx := openTestIndex(t, emb)
	ctx := context.Background()

	if err := idx.Add(ctx, []document.Chunk{chunkWith("a", "first", nil)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	emb.dim = 16
	err := idx.Add(ctx, []document.Chunk{chunkWith("b", "second", nil)})
	var ie *Error
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v (%T), want *index.Error", err, err)
	}
}

func TestListDocuments(t *testing.T) {
	emb := newStubEmbedder(4)
	idx := openTestIndex(t, emb)
	ctx := context.Background()

	var chunks []document.Chunk
	for i := 0; i < 3; i++ {
		chunks = append(chunks, chunkWith(fmt.Sprintf("m%d", i), "mars text",
			map[string]any{"title": "Mars", "source": "url-mars", "category": "Planets"}))
	}
	chunks = append(chunks, chunkWith("a0", "apollo text",
		map[string]any{"title": "Apollo 11", "source": "url-apollo", "category": "Missions"}))
	if err := idx.Add(ctx, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	docs, err := idx.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d summaries, want 2 (one per unique document): %+v", len(docs), docs)
	}
	// Ordered by category: Missions before Planets.
	if docs[0].Title != "Apollo 11" || docs[0].Category != "Missions" {
		t.Errorf("docs[0] = %+v", docs[0])
	}
	if docs[1].Title != "Mars" || docs[1].Category != "Planets" {
		t.Errorf("docs[1] = %+v", docs[1])
	}
}

func TestSampleTexts(t *testing.T) {
	emb := newStubEmbedder(4)
	idx := openTestIndex(t, emb)
	ctx := context.Background()

	var chunks []document.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, chunkWith(fmt.Sprintf("c%d", i), fmt.Sprintf("text %d", i), nil))
	}
	if err := idx.Add(ctx, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	texts, err := idx.SampleTexts(ctx, 3)
	if err != nil {
		t.Fatalf("SampleTexts: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("got %d texts, want 3", len(texts))
	}
	// Fixed-order slice, not a random sample.
	if texts[0] != "text 0" || texts[2] != "text 2" {
		t.Errorf("texts = %v", texts)
	}
}

func TestFlatten(t *testing.T) {
	flat := Flatten(map[string]any{
		"title":  "Mars",
		"tags":   []any{"planet", "exploration"},
		"labels": []string{"nasa", "apollo"},
		"depth":  3,
		"extra":  map[string]any{"nested": true},
		"empty":  nil,
	})

	want := map[string]string{
		"title":  "Mars",
		"tags":   `["planet","exploration"]`,
		"labels": `["nasa","apollo"]`,
		"depth":  "3",
		"extra":  `{"nested":true}`,
		"empty":  "",
	}
	for k, v := range want {
		if flat[k] != v {
			t.Errorf("Flatten[%q] = %q, want %q", k, flat[k], v)
		}
	}
}

func TestAdd_FlattensNestedMetadata(t *testing.T) {
	emb := newStubEmbedder(4)
	idx := openTestIndex(t, emb)
	ctx := context.Background()

	err := idx.Add(ctx, []document.Chunk{
		chunkWith("c1", "saturn v stages", map[string]any{
			"title":    "Saturn V",
			"source":   "url-saturn",
			"category": "Rockets",
			"tags":     []string{"apollo", "nasa"},
			"rank":     1,
		}),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := idx.Search(ctx, "saturn v stages", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	got := results[0].Metadata
	if got["tags"] != `["apollo","nasa"]` {
		t.Errorf("tags = %q, want flattened JSON list", got["tags"])
	}
	if got["rank"] != "1" {
		t.Errorf("rank = %q, want stringified scalar", got["rank"])
	}
	if got["category"] != "Rockets" {
		t.Errorf("category = %q", got["category"])
	}
}
