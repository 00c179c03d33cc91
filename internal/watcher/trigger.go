package watcher

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/storyvec/internal/document"
)

// IndexFunc re-indexes one content type.
type IndexFunc func(ctx context.Context, ct document.ContentType) error

// RunTrigger indexes the content types touched by each batch from events
// until events is closed or ctx is done. Index errors are logged, not
// returned, so one failed run does not stop watching.
func RunTrigger(ctx context.Context, events <-chan []FileEvent, index IndexFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			for _, ct := range Affected(batch) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Info("watch_reindex",
					slog.String("content_type", string(ct)),
					slog.Int("changes", len(batch)))
				if err := index(ctx, ct); err != nil {
					logger.Error("watch_reindex_failed",
						slog.String("content_type", string(ct)),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}
