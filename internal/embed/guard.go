package embed

import "context"

// Guard checks every result of the wrapped embedder against its declared
// dimension, so a misbehaving backend surfaces as DimensionMismatch or
// BackendBadResponse before any vector reaches the store.
type Guard struct {
	Embedder
}

// NewGuard wraps inner. Wrapping a Guard returns it unchanged.
func NewGuard(inner Embedder) *Guard {
	if g, ok := inner.(*Guard); ok {
		return g
	}
	return &Guard{Embedder: inner}
}

// Embed generates and checks a single embedding.
func (g *Guard) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := checkVectors([][]float32{vec}, 1, g.Dimensions()); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch generates and checks embeddings for texts.
func (g *Guard) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := g.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(vecs, len(texts), g.Dimensions()); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Unwrap returns the guarded embedder.
func (g *Guard) Unwrap() Embedder {
	return g.Embedder
}
