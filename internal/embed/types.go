// Package embed provides provider-agnostic text embedding.
package embed

import (
	"context"
	"time"
)

// Default request timeout for embedding calls.
const defaultTimeout = 60 * time.Second

// Embedder converts text into a fixed-length numeric vector. Implementations
// carry no retry policy of their own; retries are the index engine's
// responsibility.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension currently advertised by
	// the provider. May change after the first successful call when the
	// provider reports a different width than configured.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
