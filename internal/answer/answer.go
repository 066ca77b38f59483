// Package answer recovers a strictly-typed answer from unreliable
// generative-model output.
package answer

// Confidence is the three-level label attached to a generated answer.
type Confidence string

const (
	High   Confidence = "High"
	Medium Confidence = "Medium"
	Low    Confidence = "Low"
)

// ValidatedAnswer is the final, well-typed form of a model response.
type ValidatedAnswer struct {
	Answer     string
	Confidence Confidence
	Reasoning  *string
}

func reasoning(s string) *string { return &s }
