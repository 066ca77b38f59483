package document

import (
	"errors"
	"testing"
)

func TestAdvance_ForwardOnly(t *testing.T) {
	d := New("https://example.org/mars", TypeWebPage)
	if d.Status != StatusPending {
		t.Fatalf("new document status = %q, want %q", d.Status, StatusPending)
	}

	d.Advance(StatusCrawled)
	if d.Status != StatusCrawled {
		t.Errorf("status = %q, want %q", d.Status, StatusCrawled)
	}

	// Backwards transition is ignored.
	d.Advance(StatusPending)
	if d.Status != StatusCrawled {
		t.Errorf("status reverted to %q", d.Status)
	}

	d.Advance(StatusParsed)
	d.Advance(StatusNormalized)
	d.Advance(StatusVectorized)
	if d.Status != StatusVectorized {
		t.Errorf("status = %q, want %q", d.Status, StatusVectorized)
	}
	if !d.Terminal() {
		t.Error("vectorized document should be terminal")
	}
}

func TestNew_SourceDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://en.wikipedia.org/wiki/Saturn_V", "en.wikipedia.org"},
		{"https://arxiv.org:443/abs/1234.5678", "arxiv.org"},
		{"://not a url", ""},
	}
	for _, tt := range tests {
		d := New(tt.url, TypeWebPage)
		if d.SourceDomain != tt.want {
			t.Errorf("New(%q).SourceDomain = %q, want %q", tt.url, d.SourceDomain, tt.want)
		}
	}
}

func TestFail_FromAnyNonTerminalState(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusCrawled, StatusParsed, StatusNormalized} {
		d := New("https://example.org", TypeWebPage)
		d.Status = from
		d.Fail(errors.New("boom"))
		if d.Status != StatusFailed {
			t.Errorf("Fail from %q: status = %q, want %q", from, d.Status, StatusFailed)
		}
		if d.ErrMessage != "boom" {
			t.Errorf("Fail from %q: error message = %q", from, d.ErrMessage)
		}
	}
}

func TestFail_TerminalStatesUntouched(t *testing.T) {
	d := New("https://example.org", TypeWebPage)
	d.Status = StatusVectorized
	d.Fail(errors.New("late failure"))
	if d.Status != StatusVectorized {
		t.Errorf("Fail changed terminal status to %q", d.Status)
	}
	if d.ErrMessage != "" {
		t.Errorf("Fail set error message on terminal document: %q", d.ErrMessage)
	}
}

func TestAdvance_TerminalStatesAreFinal(t *testing.T) {
	d := New("https://example.org", TypePDF)
	d.Fail(errors.New("fetch timeout"))
	d.Advance(StatusCrawled)
	if d.Status != StatusFailed {
		t.Errorf("status = %q, want %q", d.Status, StatusFailed)
	}
}
