// Package vectorstore persists document vectors and payloads in named
// collections and answers nearest-neighbour queries over them.
//
// Two backends implement VectorStore: a Qdrant REST client for deployments
// and an in-process HNSW store for local use and tests.
package vectorstore

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/Aman-CERP/storyvec/internal/config"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

// Point is one entry written to a collection. Writing a point whose ID
// already exists replaces its vector and payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a query hit. Score is cosine similarity.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// VectorStore is a collection-oriented vector database.
// Implementations are safe for concurrent use.
type VectorStore interface {
	// EnsureCollection creates the collection with dims if it does not
	// exist and returns the dimension the collection actually records.
	EnsureCollection(ctx context.Context, name string, dims int) (int, error)

	// Dimensions returns the recorded dimension of the collection, or 0
	// when it does not exist.
	Dimensions(ctx context.Context, name string) (int, error)

	// Upsert writes points, replacing existing ids.
	Upsert(ctx context.Context, name string, points []Point) error

	// DeleteBySource removes every point whose payload metadata file_path
	// is one of relPaths. A missing collection is not an error.
	DeleteBySource(ctx context.Context, name string, relPaths []string) error

	// Query returns up to limit nearest points ordered by score descending,
	// ties by id ascending. A missing collection yields no points.
	Query(ctx context.Context, name string, vector []float32, limit int) ([]ScoredPoint, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context, name string) (int, error)

	// Health returns nil when the store is reachable.
	Health(ctx context.Context) error

	// Close releases resources, persisting state where the backend has any.
	Close() error
}

// New opens the store selected by cfg.Store.Backend.
func New(cfg *config.Config, logger *slog.Logger) (VectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return OpenMemoryStore(cfg.Store.Path, logger)
	case config.StoreQdrant, "":
		return NewQdrantStore(QdrantConfig{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: cfg.Qdrant.Timeout,
		}, logger)
	default:
		return nil, sverrors.ConfigError("unknown store backend "+cfg.Store.Backend, nil)
	}
}

// sourceKey is the payload path of the source file of a point.
const sourceKey = "metadata.file_path"

// sortScored orders hits by score descending, then id ascending.
func sortScored(points []ScoredPoint) {
	slices.SortFunc(points, func(a, b ScoredPoint) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func checkDims(points []Point, dims int) error {
	for _, p := range points {
		if len(p.Vector) != dims {
			return sverrors.DimensionMismatch(dims, len(p.Vector)).WithDetail("id", p.ID)
		}
	}
	return nil
}
