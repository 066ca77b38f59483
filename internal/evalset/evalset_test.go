package evalset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeSampler struct {
	texts []string
	err   error
}

func (f *fakeSampler) SampleTexts(_ context.Context, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.texts) {
		return f.texts[:limit], nil
	}
	return f.texts, nil
}

type fakeGenerator struct {
	replies map[string]string // keyed by a substring of the prompt
	err     error
	calls   int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	for key, reply := range f.replies {
		if strings.Contains(prompt, key) {
			return reply, nil
		}
	}
	return "", errors.New("no scripted reply")
}

func TestGenerate_OneEntryPerChunk(t *testing.T) {
	sampler := &fakeSampler{texts: []string{
		"The Saturn V stood 110 meters tall.",
		"Voyager 1 launched in 1977.",
	}}
	gen := &fakeGenerator{replies: map[string]string{
		"Saturn V": `{"question": "How tall was the Saturn V?", "ground_truth": "110 meters"}`,
		"Voyager":  "```json\n{\"question\": \"When did Voyager 1 launch?\", \"ground_truth\": \"1977\"}\n```",
	}}

	entries, err := New(sampler, gen).Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Question != "How tall was the Saturn V?" || entries[0].GroundTruth != "110 meters" {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].Context != sampler.texts[0] {
		t.Errorf("context = %q, want source chunk", entries[0].Context)
	}
	// Fenced model output must still parse.
	if entries[1].GroundTruth != "1977" {
		t.Errorf("fenced entry = %+v", entries[1])
	}
}

func TestGenerate_SkipsFailedChunks(t *testing.T) {
	sampler := &fakeSampler{texts: []string{
		"The Saturn V stood 110 meters tall.",
		"This chunk gets an unparseable reply.",
	}}
	gen := &fakeGenerator{replies: map[string]string{
		"Saturn V":    `{"question": "How tall was the Saturn V?", "ground_truth": "110 meters"}`,
		"unparseable": "Sure! Here is a question: how does it work?",
	}}

	entries, err := New(sampler, gen).Generate(context.Background(), 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1 after skipping the bad chunk", len(entries))
	}
}

func TestGenerate_AllChunksFailed(t *testing.T) {
	sampler := &fakeSampler{texts: []string{"a", "b"}}
	gen := &fakeGenerator{err: errors.New("quota exhausted")}

	if _, err := New(sampler, gen).Generate(context.Background(), 10); err == nil {
		t.Fatal("want error when every chunk fails")
	}
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want one attempt per chunk", gen.calls)
	}
}

func TestGenerate_SamplerErrorSurfaces(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := New(&fakeSampler{err: errors.New("db closed")}, gen).Generate(context.Background(), 10)
	if err == nil {
		t.Fatal("want error when sampling fails")
	}
	if gen.calls != 0 {
		t.Error("generator called despite sampling failure")
	}
}

func TestGenerate_EmptyIndex(t *testing.T) {
	if _, err := New(&fakeSampler{}, &fakeGenerator{}).Generate(context.Background(), 10); err == nil {
		t.Fatal("want error for empty index")
	}
}

func TestGenerate_RespectsLimit(t *testing.T) {
	texts := make([]string, 8)
	replies := map[string]string{}
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d text", i)
		replies[texts[i]] = fmt.Sprintf(`{"question": "q%d", "ground_truth": "a%d"}`, i, i)
	}
	gen := &fakeGenerator{replies: replies}

	entries, err := New(&fakeSampler{texts: texts}, gen).Generate(context.Background(), 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(entries) != 3 || gen.calls != 3 {
		t.Errorf("entries = %d, calls = %d, want 3 each", len(entries), gen.calls)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testset.json")
	entries := []Entry{{Question: "q", GroundTruth: "a", Context: "c"}}

	if err := WriteFile(path, entries); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []Entry
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if len(got) != 1 || got[0].Question != "q" {
		t.Errorf("round trip = %v", got)
	}
}
