// Package watcher re-indexes content when YAML files under the data
// directory change.
//
// A Watcher puts fsnotify watches on every directory under the data dir,
// keeps events for YAML files (and directories, which may hold them), and
// coalesces them through a Debouncer. Each flushed batch is mapped to the
// content types it touches, and RunTrigger indexes those types in order.
//
// Usage:
//
//	w, err := watcher.New(cfg.Indexing.DataDir, watcher.Options{Debounce: cfg.Watch.Debounce}, logger)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Run(ctx)
//	return watcher.RunTrigger(ctx, w.Events(), indexFn, logger)
package watcher
