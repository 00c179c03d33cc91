package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/storyvec/internal/config"
	"github.com/Aman-CERP/storyvec/internal/embed"
	"github.com/Aman-CERP/storyvec/internal/index"
	"github.com/Aman-CERP/storyvec/internal/search"
	"github.com/Aman-CERP/storyvec/internal/vectorstore"
)

// app holds the components shared by serve, index and search.
type app struct {
	cfg      *config.Config
	embedder embed.Embedder
	store    vectorstore.VectorStore
	indexer  *index.Indexer
	searcher *search.Executor
	queries  embed.Embedder // embedder with the query cache, if enabled
	logger   *slog.Logger
}

// newApp builds the embedder, store, indexer and search executor from cfg.
// Components already created are closed when a later one fails.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings, logger)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New(cfg, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	a := &app{cfg: cfg, embedder: embedder, store: store, logger: logger}

	a.indexer, err = index.NewIndexer(index.Dependencies{
		Config:   cfg,
		Embedder: embedder,
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	// Only the query path is cached.
	a.queries = embed.WithQueryCache(embedder, cfg.Embeddings.CacheSize)
	a.searcher, err = search.NewExecutor(cfg, a.queries, store, search.WithLogger(logger))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create search executor: %w", err)
	}

	return a, nil
}

// logCacheStats records query cache effectiveness.
func (a *app) logCacheStats() {
	c, ok := a.queries.(*embed.CachedEmbedder)
	if !ok {
		return
	}
	stats := c.Stats()
	a.logger.Info("query_cache_stats",
		slog.Int64("hits", stats.Hits),
		slog.Int64("misses", stats.Misses),
		slog.Int("size", stats.Size))
}

// Close releases the store and embedder. The memory store persists on Close.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	return errors.Join(errs...)
}
