// Package search answers semantic queries against one collection.
//
// The Executor embeds the query with the same backend used for indexing,
// queries the vector store and applies the score threshold. A collection
// that was never indexed yields an empty result, not an error.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/storyvec/internal/config"
	"github.com/Aman-CERP/storyvec/internal/document"
	"github.com/Aman-CERP/storyvec/internal/embed"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/telemetry"
	"github.com/Aman-CERP/storyvec/internal/vectorstore"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Executor runs searches. It is safe for concurrent use.
type Executor struct {
	cfg      *config.Config
	embedder embed.Embedder
	store    vectorstore.VectorStore
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records every completed search into m.
func WithMetrics(m *telemetry.QueryMetrics) ExecutorOption {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewExecutor creates an Executor. The embedder should be the indexing
// backend, usually wrapped with embed.WithQueryCache.
func NewExecutor(cfg *config.Config, embedder embed.Embedder, store vectorstore.VectorStore, opts ...ExecutorOption) (*Executor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: vector store", ErrNilDependency)
	}

	e := &Executor{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = telemetry.New(telemetry.DefaultConfig())
	}
	return e, nil
}

// Metrics returns the collector searches are recorded into.
func (e *Executor) Metrics() *telemetry.QueryMetrics {
	return e.metrics
}

// resolved holds a validated Request with defaults applied.
type resolved struct {
	query      string
	ct         document.ContentType
	collection string
	limit      int
	threshold  float64
}

func (e *Executor) resolve(req Request) (resolved, error) {
	r := resolved{
		query:     strings.TrimSpace(req.Query),
		ct:        req.ContentType,
		limit:     req.Limit,
		threshold: e.cfg.Search.ScoreThreshold,
	}

	if r.query == "" {
		return r, sverrors.InvalidInput("query must not be empty").
			WithSuggestion("pass the search text in q")
	}
	if r.ct == "" {
		r.ct = document.ContentTypeCaptions
	}
	collection, ok := e.cfg.Collection(string(r.ct))
	if !ok {
		return r, sverrors.InvalidInput(fmt.Sprintf("unknown content type %q", r.ct)).
			WithSuggestion("use type=captions or type=stories")
	}
	r.collection = collection

	switch {
	case r.limit == 0:
		r.limit = e.cfg.Search.TopK
	case r.limit < 0:
		return r, sverrors.InvalidInput(fmt.Sprintf("limit must be positive, got %d", r.limit))
	}
	if req.ScoreThreshold != nil {
		r.threshold = *req.ScoreThreshold
	}
	return r, nil
}

// Search runs req. Invalid parameters return an InvalidInput error; a
// collection whose dimension differs from the embedder's returns
// BackendDimensionMismatch without querying.
func (e *Executor) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	r, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Query:       r.query,
		ContentType: r.ct,
		Results:     []Result{},
		Meta: Meta{
			Limit:          r.limit,
			ScoreThreshold: r.threshold,
			Collection:     r.collection,
			Model:          e.embedder.ModelName(),
		},
	}

	recorded, err := e.store.Dimensions(ctx, r.collection)
	if err != nil {
		return nil, err
	}
	if recorded == 0 {
		e.logger.Debug("search_empty_collection", slog.String("collection", r.collection))
		e.record(resp, time.Since(start))
		return resp, nil
	}
	if dims := e.embedder.Dimensions(); recorded != dims {
		return nil, sverrors.DimensionMismatch(recorded, dims).
			WithDetail("collection", r.collection).
			WithSuggestion("search with the backend the collection was indexed with, or re-index")
	}

	vec, err := e.embedder.Embed(ctx, r.query)
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.Query(ctx, r.collection, vec, r.limit)
	if err != nil {
		return nil, err
	}

	for _, c := range Filter(candidates, r.threshold, r.limit) {
		resp.Results = append(resp.Results, toResult(c))
	}
	resp.Meta.Total = len(resp.Results)
	e.record(resp, time.Since(start))

	e.logger.Info("search_completed",
		slog.String("collection", r.collection),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", resp.Meta.Total),
		slog.Int("limit", r.limit),
		slog.Float64("score_threshold", r.threshold),
		slog.Duration("duration", time.Since(start)))

	return resp, nil
}

func (e *Executor) record(resp *Response, elapsed time.Duration) {
	resp.Meta.DurationMs = elapsed.Milliseconds()
	e.metrics.Record(telemetry.QueryEvent{
		Query:       resp.Query,
		ContentType: string(resp.ContentType),
		ResultCount: len(resp.Results),
		Latency:     elapsed,
	})
}

func toResult(p vectorstore.ScoredPoint) Result {
	res := Result{ID: p.ID, Score: p.Score, Metadata: map[string]any{}}
	if text, ok := p.Payload["text"].(string); ok {
		res.Text = text
	}
	if meta, ok := p.Payload["metadata"].(map[string]any); ok {
		res.Metadata = meta
	}
	return res
}
