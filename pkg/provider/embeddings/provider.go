// Package embeddings defines the Provider interface for text embedding
// backends used by the semantic index.
//
// Implementors must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any embedding backend.
type Provider interface {
	// Embed returns the vector representation of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the output dimension of the underlying model.
	// The semantic index schema must be created with the same value.
	Dimensions() int

	// ModelID returns the identifier of the underlying model.
	ModelID() string
}
