// Package index turns extracted content into stored vectors.
//
// An Indexer runs Extract -> Normalize -> batched embed + upsert for one
// content type at a time. Batches fail independently: a batch that still
// fails after one retry is recorded in the Summary and the run moves on.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/storyvec/internal/config"
	"github.com/Aman-CERP/storyvec/internal/document"
	"github.com/Aman-CERP/storyvec/internal/embed"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/extract"
	"github.com/Aman-CERP/storyvec/internal/vectorstore"
)

// deleteGroupSize bounds the source paths sent in one delete request.
const deleteGroupSize = 256

// Dependencies contains the injected dependencies for Indexer.
type Dependencies struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// Embedder produces document vectors (required).
	Embedder embed.Embedder

	// Store receives the vectors (required).
	Store vectorstore.VectorStore

	// Extractor reads the content tree; built from Config when nil.
	Extractor *extract.Extractor

	// Locks serializes runs per collection; built from Config when nil.
	Locks *Locks

	Logger *slog.Logger
}

// Indexer runs indexing jobs. It is safe for concurrent use; runs on the
// same collection are serialized.
type Indexer struct {
	cfg       *config.Config
	embedder  embed.Embedder
	store     vectorstore.VectorStore
	extractor *extract.Extractor
	locks     *Locks
	progress  map[document.ContentType]*Progress // fixed at construction
	logger    *slog.Logger
	retry     sverrors.RetryConfig
}

// NewIndexer creates an Indexer with injected dependencies.
func NewIndexer(deps Dependencies) (*Indexer, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.New(cfg.Indexing.DataDir, cfg.Indexing.Workers, logger)
	}
	locks := deps.Locks
	if locks == nil {
		locks = NewLocks(cfg.Indexing.StateDir)
	}
	progress := make(map[document.ContentType]*Progress, len(document.ContentTypes))
	for _, ct := range document.ContentTypes {
		progress[ct] = NewProgress()
	}

	retry := sverrors.DefaultRetryConfig()
	retry.InitialDelay = cfg.Indexing.RetryBackoff

	return &Indexer{
		cfg:       cfg,
		embedder:  deps.Embedder,
		store:     deps.Store,
		extractor: extractor,
		locks:     locks,
		progress:  progress,
		logger:    logger,
		retry:     retry,
	}, nil
}

// Progress returns the progress of the latest run over ct, or nil for an
// unknown content type.
func (ix *Indexer) Progress(ct document.ContentType) *Progress {
	return ix.progress[ct]
}

// Status reports the latest run of every content type.
func (ix *Indexer) Status() StatusReport {
	snaps := make(map[document.ContentType]ProgressSnapshot, len(ix.progress))
	for ct, p := range ix.progress {
		snaps[ct] = p.Snapshot()
	}
	return NewStatusReport(snaps)
}

// Index runs a full job for one content type. Per-unit and per-batch
// failures are reported in the Summary, not as an error. The error is
// non-nil only when the job could not run (walk or lock failure) or was
// cancelled, in which case the Summary records what happened so far.
func (ix *Indexer) Index(ctx context.Context, ct document.ContentType) (*Summary, error) {
	start := time.Now()

	collection, ok := ix.cfg.Collection(string(ct))
	progress := ix.progress[ct]
	if !ok || progress == nil {
		return nil, sverrors.InvalidInput(fmt.Sprintf("unknown content type %q", ct))
	}
	progress.Start(ct)

	ix.logger.Info("index_started",
		slog.String("content_type", string(ct)),
		slog.String("collection", collection))

	res, err := ix.extractor.Extract(ctx, ct)
	if err != nil {
		progress.SetError(err.Error())
		return nil, err
	}

	release, err := ix.locks.Acquire(ctx, collection)
	if err != nil {
		progress.SetError(err.Error())
		return nil, fmt.Errorf("failed to lock collection %s: %w", collection, err)
	}
	defer release()

	var tracker *Tracker
	if ix.cfg.Indexing.Incremental {
		if tracker, err = LoadTracker(ix.cfg.Indexing.StateDir, collection); err != nil {
			ix.logger.Warn("tracker_load_failed", sverrors.LogAttrs(err)...)
			tracker = nil
		}
	}

	summary := &Summary{
		ContentType:  ct,
		Collection:   collection,
		SkippedUnits: res.Skipped,
	}

	unchanged := make(map[string]bool)
	if tracker != nil {
		for _, f := range res.Files {
			if tracker.Unchanged(ct, ix.embedder.ModelName(), ix.embedder.Dimensions(), f.RelPath, f.Hash) {
				unchanged[f.RelPath] = true
				summary.Unchanged++
			}
		}
	}

	// Changed files are replaced as a whole: their old points are deleted
	// before the new ones are written.
	var changed []string
	for _, f := range res.Files {
		if !unchanged[f.RelPath] {
			changed = append(changed, f.RelPath)
		}
	}

	var docs []document.Document
	for _, unit := range res.Units {
		if unchanged[unit.RelPath] {
			continue
		}
		doc, err := document.Normalize(unit)
		if err != nil {
			skip := extract.Skip{Path: unit.RelPath, PostIndex: -1, Reason: err.Error(), Err: err}
			if unit.HasPost {
				skip.PostIndex = unit.SubIndex
			}
			if e, ok := sverrors.As(err); ok {
				skip.Reason = e.Message
			}
			summary.SkippedUnits = append(summary.SkippedUnits, skip)
			continue
		}
		docs = append(docs, document.Chunk(doc, ix.cfg.Indexing.MaxTokens, ix.cfg.Indexing.ChunkOverlap)...)
	}
	summary.Skipped = len(summary.SkippedUnits)

	runErr := ix.indexDocuments(ctx, progress, summary, docs, changed)
	summary.Duration = time.Since(start)

	if tracker != nil && runErr == nil && summary.preflightErr == nil {
		ix.updateTracker(tracker, ct, res, unchanged, docs, summary)
	}

	switch {
	case runErr != nil:
		progress.SetError(runErr.Error())
	case summary.preflightErr != nil:
		progress.SetError(summary.preflightErr.Error())
	default:
		progress.Finish()
	}

	ix.logger.Info("index_complete",
		slog.String("content_type", string(ct)),
		slog.String("collection", collection),
		slog.Int("documents", summary.Documents),
		slog.Int("indexed", summary.Indexed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("failed", summary.Failed),
		slog.Int("failed_batches", len(summary.FailedBatches)),
		slog.Duration("duration", summary.Duration))

	return summary, runErr
}

// IndexDocuments stores docs in collection without extraction, locking or
// tracking. The error is non-nil only when ctx was cancelled.
func (ix *Indexer) IndexDocuments(ctx context.Context, collection string, docs []document.Document) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Collection: collection}
	if len(docs) > 0 {
		summary.ContentType = docs[0].ContentType
	}
	err := ix.indexDocuments(ctx, NewProgress(), summary, docs, nil)
	summary.Duration = time.Since(start)
	return summary, err
}

// indexDocuments stores docs in batches. Points of the files in replace are
// deleted first.
func (ix *Indexer) indexDocuments(ctx context.Context, progress *Progress, summary *Summary, docs []document.Document, replace []string) error {
	dims := ix.embedder.Dimensions()
	batches := Batches(docs, ix.cfg.Indexing.BatchSize)

	summary.Model = ix.embedder.ModelName()
	summary.Dimensions = dims
	summary.Documents = len(docs)
	summary.Batches = len(batches)
	summary.FailedBatches = []BatchFailure{}
	progress.SetBatches(len(docs), len(batches))

	if len(batches) == 0 && len(replace) == 0 {
		return nil
	}

	// Pre-flight: a collection recorded with another dimension rejects the
	// whole run before anything is embedded.
	recorded, err := sverrors.RetryWithResult(ctx, ix.retry, func() (int, error) {
		return ix.store.EnsureCollection(ctx, summary.Collection, dims)
	})
	if err == nil && recorded != dims {
		err = sverrors.DimensionMismatch(recorded, dims).
			WithDetail("collection", summary.Collection).
			WithSuggestion("re-create the collection or configure a backend with the recorded dimension")
	}
	if err == nil {
		err = ix.deleteFiles(ctx, summary.Collection, replace)
	}
	if err != nil {
		ix.logger.Error("collection_preflight_failed",
			append([]any{slog.String("collection", summary.Collection)}, sverrors.LogAttrs(err)...)...)
		summary.preflightErr = err
		summary.Error = err.Error()
		ix.failRemaining(progress, summary, batches, 0, err)
		return ctxErr(ctx, err)
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			ix.failRemaining(progress, summary, batches, i, err)
			return err
		}

		if err := ix.runBatch(ctx, summary.Collection, i, batch, dims); err != nil {
			failure := newBatchFailure(i, ids(batch), err)
			summary.FailedBatches = append(summary.FailedBatches, failure)
			summary.Failed += len(batch)
			progress.BatchDone(len(batch), true)

			ix.logger.Error("batch_failed",
				append([]any{
					slog.String("collection", summary.Collection),
					slog.Int("batch", i),
					slog.Int("size", len(batch)),
				}, sverrors.LogAttrs(err)...)...)

			if cerr := ctxErr(ctx, err); cerr != nil {
				ix.failRemaining(progress, summary, batches, i+1, cerr)
				return cerr
			}
			continue
		}

		summary.Indexed += len(batch)
		progress.BatchDone(len(batch), false)
		ix.logger.Debug("batch_indexed",
			slog.String("collection", summary.Collection),
			slog.Int("batch", i),
			slog.Int("size", len(batch)))
	}
	return nil
}

// runBatch embeds and upserts one batch, retrying the pair once.
func (ix *Indexer) runBatch(ctx context.Context, collection string, index int, batch []document.Document, dims int) error {
	texts := make([]string, len(batch))
	for i, d := range batch {
		texts[i] = d.Text
	}

	retry := ix.retry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		ix.logger.Warn("batch_retry",
			append([]any{
				slog.String("collection", collection),
				slog.Int("batch", index),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
			}, sverrors.LogAttrs(err)...)...)
	}

	return sverrors.Retry(ctx, retry, func() error {
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return sverrors.BackendBadResponse(
				fmt.Sprintf("expected %d vectors, got %d", len(batch), len(vectors)), nil)
		}

		points := make([]vectorstore.Point, len(batch))
		for i, d := range batch {
			if len(vectors[i]) != dims {
				return sverrors.DimensionMismatch(dims, len(vectors[i])).WithDetail("id", d.ID)
			}
			points[i] = vectorstore.Point{ID: d.ID, Vector: vectors[i], Payload: d.Payload()}
		}
		return ix.store.Upsert(ctx, collection, points)
	})
}

// deleteFiles removes the points of relPaths, a bounded group per request.
func (ix *Indexer) deleteFiles(ctx context.Context, collection string, relPaths []string) error {
	for _, group := range Batches(relPaths, deleteGroupSize) {
		err := sverrors.Retry(ctx, ix.retry, func() error {
			return ix.store.DeleteBySource(ctx, collection, group)
		})
		if err != nil {
			return err
		}
	}
	if len(relPaths) > 0 {
		ix.logger.Debug("source_points_deleted",
			slog.String("collection", collection),
			slog.Int("files", len(relPaths)))
	}
	return nil
}

// failRemaining records batches[from:] as failed with err.
func (ix *Indexer) failRemaining(progress *Progress, summary *Summary, batches [][]document.Document, from int, err error) {
	for i := from; i < len(batches); i++ {
		summary.FailedBatches = append(summary.FailedBatches, newBatchFailure(i, ids(batches[i]), err))
		summary.Failed += len(batches[i])
		progress.BatchDone(len(batches[i]), true)
	}
}

// updateTracker records files whose documents were all stored. Files that
// disappeared from the tree are dropped.
func (ix *Indexer) updateTracker(t *Tracker, ct document.ContentType, res *extract.Result, unchanged map[string]bool, docs []document.Document, summary *Summary) {
	failedPaths := make(map[string]bool)
	byID := make(map[string]string, len(docs))
	for _, d := range docs {
		byID[d.ID] = d.SourcePath
	}
	for _, f := range summary.FailedBatches {
		for _, id := range f.IDs {
			failedPaths[byID[id]] = true
		}
	}

	files := make(map[string]string, len(res.Files))
	for _, f := range res.Files {
		if unchanged[f.RelPath] || !failedPaths[f.RelPath] {
			files[f.RelPath] = f.Hash
		}
	}

	t.Replace(ct, ix.embedder.ModelName(), ix.embedder.Dimensions(), files)
	if err := t.Save(); err != nil {
		ix.logger.Warn("tracker_save_failed", slog.String("error", err.Error()))
	}
}

// IndexAll indexes each content type in turn. A cancelled context stops
// before the next type.
func (ix *Indexer) IndexAll(ctx context.Context, types []document.ContentType) (map[document.ContentType]*Summary, error) {
	results := make(map[document.ContentType]*Summary, len(types))
	for _, ct := range types {
		summary, err := ix.Index(ctx, ct)
		if summary != nil {
			results[ct] = summary
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func ids(batch []document.Document) []string {
	out := make([]string, len(batch))
	for i, d := range batch {
		out[i] = d.ID
	}
	return out
}

// ctxErr returns the context error when err was caused by ctx ending.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctx.Err()
	}
	return nil
}
