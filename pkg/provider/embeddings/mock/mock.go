// Package mock provides a deterministic test double for the embeddings
// provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/lunavale/mnemo/pkg/provider/embeddings"
)

// Ensure Provider satisfies the interface at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a configurable test double for [embeddings.Provider].
// When EmbedFunc is nil, Embed returns a zero vector of Dim dimensions.
type Provider struct {
	mu sync.Mutex

	// Dim is the reported embedding dimension. Defaults to 4 when zero.
	Dim int

	// EmbedFunc overrides the default zero-vector behaviour.
	EmbedFunc func(text string) ([]float32, error)

	// EmbedErr is returned by Embed and EmbedBatch when non-nil.
	EmbedErr error

	// Embedded records every text passed to Embed or EmbedBatch.
	Embedded []string
}

func (p *Provider) dim() int {
	if p.Dim == 0 {
		return 4
	}
	return p.Dim
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Embedded = append(p.Embedded, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text)
	}
	return make([]float32, p.dim()), nil
}

// EmbedBatch implements [embeddings.Provider].
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int { return p.dim() }

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return "mock" }
