package embed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SentenceServerConfig configures SentenceServerEmbedder.
type SentenceServerConfig struct {
	Endpoint   string
	Model      string
	Dimensions int
	Timeout    time.Duration
	PoolSize   int
}

type sentenceEmbedRequest struct {
	Inputs []string `json:"inputs"`
}

// SentenceServerEmbedder talks to a sentence-transformers model served over
// HTTP (text-embeddings-inference and compatible servers):
//
//	POST {endpoint}/embed  {"inputs": ["..."]}  ->  [[0.1, ...], ...]
//	GET  {endpoint}/health
type SentenceServerEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    SentenceServerConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*SentenceServerEmbedder)(nil)

// NewSentenceServerEmbedder creates a client for the server at cfg.Endpoint.
// Dimensions must be declared; the server is not probed.
func NewSentenceServerEmbedder(cfg SentenceServerConfig) (*SentenceServerEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("sentence_transformers endpoint is required")
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = LocalDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, transport := newHTTPClient(cfg.PoolSize)

	slog.Debug("sentence_server_embedder_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", cfg.Dimensions))

	return &SentenceServerEmbedder{client: client, transport: transport, config: cfg}, nil
}

// Embed generates embedding for a single text.
func (e *SentenceServerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *SentenceServerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	var raw [][]float64
	err := doJSON(reqCtx, e.client, "sentence_transformers", http.MethodPost,
		e.config.Endpoint+"/embed", sentenceEmbedRequest{Inputs: texts}, &raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	vecs := make([][]float32, len(raw))
	for i, v := range raw {
		vecs[i] = toFloat32(v)
	}
	if err := checkVectors(vecs, len(texts), e.config.Dimensions); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Dimensions returns the declared embedding dimension.
func (e *SentenceServerEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the configured model name.
func (e *SentenceServerEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks the server's health endpoint.
func (e *SentenceServerEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (e *SentenceServerEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
