package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/storyvec/internal/document"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/preflight"
	"github.com/Aman-CERP/storyvec/internal/server"
	"github.com/Aman-CERP/storyvec/internal/watcher"
)

type serveOptions struct {
	addr         string
	watch        bool
	indexOnStart bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Start the HTTP API serving /index, /search, /health and /status.

With --watch, changes under the data directory re-index the affected
content type after a debounce window.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-index when files under the data directory change")
	cmd.Flags().BoolVar(&opts.indexOnStart, "index-on-start", false, "Index every content type before serving")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg := loadedConfig
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	checks := preflight.New().RunAll(ctx, cfg)
	for _, c := range checks {
		if c.Status != preflight.StatusPass {
			logger.Warn("preflight_check",
				slog.String("check", c.Name),
				slog.String("status", c.Status.String()),
				slog.String("message", c.Message))
		}
	}
	if preflight.HasCriticalFailures(checks) {
		return sverrors.ConfigError("preflight checks failed", nil).
			WithSuggestion("run `storyvec health` for details")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		a.logCacheStats()
		if err := a.Close(); err != nil {
			logger.Warn("shutdown_close_failed", slog.String("error", err.Error()))
		}
	}()

	srv, err := server.New(server.Dependencies{
		Config:   cfg,
		Indexer:  a.indexer,
		Searcher: a.searcher,
		Embedder: a.embedder,
		Store:    a.store,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if opts.indexOnStart {
		g.Go(func() error {
			results, err := a.indexer.IndexAll(gctx, document.ContentTypes)
			for ct, summary := range results {
				logger.Info("startup_index_done",
					slog.String("content_type", string(ct)),
					slog.Int("indexed", summary.Indexed),
					slog.Int("failed_batches", len(summary.FailedBatches)))
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("startup_index_failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if opts.watch || cfg.Watch.Enabled {
		w, err := watcher.New(cfg.Indexing.DataDir, watcher.Options{Debounce: cfg.Watch.Debounce}, logger)
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()

		g.Go(func() error {
			return w.Run(gctx)
		})
		g.Go(func() error {
			return watcher.RunTrigger(gctx, w.Events(), func(ctx context.Context, ct document.ContentType) error {
				_, err := a.indexer.Index(ctx, ct)
				return err
			}, logger)
		})
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case err, ok := <-w.Errors():
					if !ok {
						return nil
					}
					logger.Warn("watch_error", slog.String("error", err.Error()))
				}
			}
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
