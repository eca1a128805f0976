// Package embedding provides clients for embedding backends and an
// ordered fallback chain over them.
package embedding

import (
	"context"
	"fmt"
)

// Provider converts a batch of texts into fixed-dimension vectors.
// Output is order-preserving: result[i] embeds texts[i].
type Provider interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// BackendError carries the failure class of one backend call so the
// chain can decide whether falling back is appropriate.
type BackendError struct {
	Backend    string
	StatusCode int // 0 for network/transport failures
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding backend %s: status %d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding backend %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is environmental
// (authentication, quota, rate limiting, server or network trouble) and
// therefore eligible for fallback. Anything else is treated as a bug
// and must not be masked by switching backends.
func (e *BackendError) Transient() bool {
	if e.StatusCode == 0 {
		return true // network failure
	}
	switch e.StatusCode {
	case 401, 403, 408, 429:
		return true
	}
	return e.StatusCode >= 500
}

// FitDimensions truncates or zero-pads vec to dims so every backend
// writes index-compatible vectors. Backend identity is still recorded
// per namespace; padding only keeps the index mapping valid.
func FitDimensions(vec []float32, dims int) []float32 {
	if dims <= 0 || len(vec) == dims {
		return vec
	}
	if len(vec) > dims {
		return vec[:dims]
	}
	out := make([]float32, dims)
	copy(out, vec)
	return out
}
