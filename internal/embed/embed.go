// Package embed turns article text into dense vectors.
//
// Backends implement Embedder. Service wraps a backend with text
// preparation, a per-article cache and the empty-text fallback, so callers
// always get a vector of the model dimension back.
package embed

import (
	"context"
	"errors"
)

// ErrModelUnavailable is returned when a backend cannot produce embeddings at
// startup.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder computes one vector per input text, in input order.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Prober is implemented by backends that can check their model before the
// first embedding call.
type Prober interface {
	Probe(ctx context.Context) error
}
