// Package embed converts text into fixed-dimension vectors.
//
// Backends are interchangeable behind the Embedder interface and are chosen
// once at startup by NewEmbedder. Every backend reports failures with the
// backend error kinds from internal/errors so callers can apply one retry
// policy regardless of provider.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"

	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

const (
	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// DefaultPoolSize is the HTTP connection pool size for remote backends.
	DefaultPoolSize = 4

	// DefaultDimensions is used for Ollama models when detection is skipped.
	DefaultDimensions = 768

	// LocalDimensions matches all-MiniLM-L6-v2.
	LocalDimensions = 384
)

// Embedder generates vector embeddings for text.
// Implementations are safe for concurrent use.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the declared embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// checkVectors verifies a backend returned n vectors of length dims.
func checkVectors(vecs [][]float32, n, dims int) error {
	if len(vecs) != n {
		return sverrors.BackendBadResponse(fmt.Sprintf("expected %d vectors, got %d", n, len(vecs)), nil)
	}
	for _, v := range vecs {
		if len(v) != dims {
			return sverrors.DimensionMismatch(dims, len(v))
		}
	}
	return nil
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// toFloat32 converts and normalizes a JSON-decoded vector.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return normalizeVector(out)
}
