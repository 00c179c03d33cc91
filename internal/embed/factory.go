package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/storyvec/internal/config"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses the Ollama HTTP API.
	ProviderOllama ProviderType = config.BackendOllama

	// ProviderSentenceTransformers uses a sentence-transformers model, in
	// process or behind an HTTP endpoint.
	ProviderSentenceTransformers ProviderType = config.BackendSentenceTransformers
)

// ParseProvider converts a string to ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProviderOllama):
		return ProviderOllama, nil
	case string(ProviderSentenceTransformers), "sentence-transformers", "local":
		return ProviderSentenceTransformers, nil
	default:
		return "", sverrors.InvalidInput(fmt.Sprintf("unknown embedding backend %q", s))
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// NewEmbedder creates the backend selected by cfg.Backend and wraps it in a
// Guard. There is no fallback between providers: an unreachable backend is
// an error.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := ParseProvider(cfg.Backend)
	if err != nil {
		return nil, err
	}

	var embedder Embedder
	switch provider {
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:              cfg.Ollama.Endpoint,
			Model:             cfg.Ollama.Model,
			Dimensions:        cfg.Ollama.Dimensions,
			Timeout:           cfg.Ollama.Timeout,
			RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w", err)
		}

	case ProviderSentenceTransformers:
		st := cfg.SentenceTransformers
		if st.Endpoint == "" {
			embedder = NewLocalEmbedder(st.Dimensions)
		} else {
			embedder, err = NewSentenceServerEmbedder(SentenceServerConfig{
				Endpoint:   st.Endpoint,
				Model:      st.Model,
				Dimensions: st.Dimensions,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	logger.Info("embedder_ready",
		slog.String("backend", provider.String()),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	return NewGuard(embedder), nil
}

// WithQueryCache wraps e in an LRU cache of size cacheSize; a size of 0
// disables caching.
func WithQueryCache(e Embedder, cacheSize int) Embedder {
	if cacheSize <= 0 {
		return e
	}
	return NewCachedEmbedder(e, cacheSize)
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType `json:"backend"`
	Model      string       `json:"model"`
	Dimensions int          `json:"dimensions"`
	Available  bool         `json:"available"`
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	for {
		switch e := inner.(type) {
		case *CachedEmbedder:
			inner = e.Embedder
			continue
		case *Guard:
			inner = e.Embedder
			continue
		}
		break
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	case *LocalEmbedder, *SentenceServerEmbedder:
		info.Provider = ProviderSentenceTransformers
	}
	return info
}
