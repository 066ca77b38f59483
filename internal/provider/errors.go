package provider

import "fmt"

// RateLimitError reports a provider rejection caused by rate limiting.
// Callers may retry after backing off; see internal/embedding for the
// single-retry policy applied to embedding batches.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ProviderError reports any other provider failure. Not retried.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
