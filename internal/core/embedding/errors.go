package embedding

import (
	"errors"
	"fmt"
)

// ProviderError carries the HTTP status a provider answered with. Status 0
// means the call never produced a response (network error, timeout).
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("embedding provider: %s", e.Message)
	}
	return fmt.Sprintf("embedding provider: status %d: %s", e.Status, e.Message)
}

// Transient reports whether the failure is worth retrying: rate limits,
// server errors, and calls that never reached the provider.
func (e *ProviderError) Transient() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// IsTransient classifies any error for retry purposes. Unknown error
// types count as transient so network-level failures get their retries.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return true
}

// ErrDimensionMismatch flags a returned vector whose length disagrees with
// the collection's configured dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrChunkOverflow flags a piece that still exceeds the token budget after
// the deepest character-level split. It never reaches callers; the
// orchestrator skips the chunk and continues with its siblings.
var ErrChunkOverflow = errors.New("chunk exceeds token budget after split")
