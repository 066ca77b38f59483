// Package extract converts raw fetched content (HTML, PDF) into plain text
// and normalizes it for chunking.
package extract

import "fmt"

// Error reports unsupported or corrupt content.
type Error struct {
	Kind string // "html", "pdf"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extracting %s content: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
