package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

// DefaultQdrantTimeout bounds a single Qdrant request.
const DefaultQdrantTimeout = 30 * time.Second

// QdrantConfig configures QdrantStore.
type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration

	// Breaker overrides the default circuit breaker (5 failures, 30s).
	Breaker *sverrors.CircuitBreaker
}

// QdrantStore is a VectorStore backed by Qdrant's REST API.
type QdrantStore struct {
	base    string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	breaker *sverrors.CircuitBreaker
	logger  *slog.Logger
}

var _ VectorStore = (*QdrantStore)(nil)

// errNotFound marks a 404 from Qdrant; it never leaves this file.
var errNotFound = errors.New("not found")

// NewQdrantStore creates a client. It does not contact the server.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, sverrors.ConfigError("qdrant.url is required", nil)
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, sverrors.ConfigError(fmt.Sprintf("invalid qdrant.url %q: %v", cfg.URL, err), err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQdrantTimeout
	}
	if cfg.Breaker == nil {
		cfg.Breaker = sverrors.NewCircuitBreaker("qdrant")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &QdrantStore{
		base:    strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     30 * time.Second,
		}},
		breaker: cfg.Breaker,
		logger:  logger,
	}, nil
}

// EnsureCollection implements VectorStore.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dims int) (int, error) {
	existing, err := s.Dimensions(ctx, name)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return existing, nil
	}

	body := qdrantCreateCollection{Vectors: qdrantVectorParams{Size: dims, Distance: "Cosine"}}
	err = s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), body, nil)
	if err != nil {
		// Another writer may have created it first.
		if existing, getErr := s.Dimensions(ctx, name); getErr == nil && existing > 0 {
			return existing, nil
		}
		return 0, err
	}

	s.logger.Info("collection_created",
		slog.String("collection", name),
		slog.Int("dimensions", dims))
	return dims, nil
}

// Dimensions implements VectorStore.
func (s *QdrantStore) Dimensions(ctx context.Context, name string) (int, error) {
	var resp qdrantResponse[qdrantCollectionInfo]
	err := s.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	dims, err := resp.Result.vectorSize()
	if err != nil {
		return 0, sverrors.VectorStoreUnavailable(fmt.Sprintf("collection %s: %v", name, err), err)
	}
	return dims, nil
}

// Upsert implements VectorStore. The request waits for Qdrant to apply
// the write so a following query observes it.
func (s *QdrantStore) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	body := qdrantUpsert{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}

	err := s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name)+"/points?wait=true", body, nil)
	if errors.Is(err, errNotFound) {
		return sverrors.VectorStoreUpsert(fmt.Sprintf("collection %s does not exist", name), nil)
	}
	return err
}

// DeleteBySource implements VectorStore with a payload filter delete.
func (s *QdrantStore) DeleteBySource(ctx context.Context, name string, relPaths []string) error {
	if len(relPaths) == 0 {
		return nil
	}

	body := qdrantDelete{Filter: qdrantFilter{Must: []qdrantCondition{{
		Key:   sourceKey,
		Match: qdrantMatchAny{Any: relPaths},
	}}}}
	err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(name)+"/points/delete?wait=true", body, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

// Query implements VectorStore.
func (s *QdrantStore) Query(ctx context.Context, name string, vector []float32, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		return []ScoredPoint{}, nil
	}

	var resp qdrantResponse[[]qdrantScored]
	body := qdrantSearch{Vector: vector, Limit: limit, WithPayload: true}
	err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(name)+"/points/search", body, &resp)
	if errors.Is(err, errNotFound) {
		return []ScoredPoint{}, nil
	}
	if err != nil {
		return nil, err
	}

	points := make([]ScoredPoint, len(resp.Result))
	for i, hit := range resp.Result {
		points[i] = ScoredPoint{ID: hit.id(), Score: hit.Score, Payload: hit.Payload}
	}
	sortScored(points)
	return points, nil
}

// Count implements VectorStore.
func (s *QdrantStore) Count(ctx context.Context, name string) (int, error) {
	var resp qdrantResponse[qdrantCountResult]
	err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(name)+"/points/count", qdrantCount{Exact: true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Health implements VectorStore.
func (s *QdrantStore) Health(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/collections", nil, nil)
}

// Close implements VectorStore.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do runs one request through the circuit breaker. Only unavailability
// counts as a breaker failure.
func (s *QdrantStore) do(ctx context.Context, method, path string, in, out any) error {
	err := s.breaker.Execute(func() error {
		return s.roundTrip(ctx, method, path, in, out)
	}, func(err error) bool {
		return sverrors.KindOf(err) == sverrors.KindStoreUnavailable
	})
	if errors.Is(err, sverrors.ErrCircuitOpen) {
		return sverrors.VectorStoreUnavailable("qdrant circuit breaker is open", err)
	}
	return err
}

func (s *QdrantStore) roundTrip(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return sverrors.InternalError("failed to marshal qdrant request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
	if err != nil {
		return sverrors.VectorStoreUnavailable("failed to build qdrant request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return sverrors.VectorStoreUnavailable(fmt.Sprintf("failed to reach qdrant at %s", s.base), err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return sverrors.VectorStoreUnavailable(
			fmt.Sprintf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, readError(resp.Body)), nil)
	case resp.StatusCode >= 300:
		return sverrors.VectorStoreUpsert(
			fmt.Sprintf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, readError(resp.Body)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return sverrors.VectorStoreUnavailable("failed to decode qdrant response", err)
	}
	return nil
}

// readError extracts Qdrant's status.error message, falling back to the
// raw body.
func readError(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var qe qdrantError
	if err := json.Unmarshal(raw, &qe); err == nil && qe.Status.Error != "" {
		return qe.Status.Error
	}
	return strings.TrimSpace(string(raw))
}
