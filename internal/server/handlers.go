package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Aman-CERP/storyvec/internal/document"
	"github.com/Aman-CERP/storyvec/internal/embed"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/index"
	"github.com/Aman-CERP/storyvec/internal/search"
)

// healthTimeout bounds each dependency check made by /health.
const healthTimeout = 5 * time.Second

// ServiceHealth is the health check result for one dependency.
type ServiceHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string                   `json:"status"` // ok or degraded
	Services      map[string]ServiceHealth `json:"services"`
	Embedder      embed.EmbedderInfo       `json:"embedder"`
	UptimeSeconds int                      `json:"uptime_seconds"`
}

// IndexResponse is the body of POST /index.
type IndexResponse struct {
	Results map[document.ContentType]*index.Summary `json:"results"`
}

type errorBody struct {
	Error sverrors.JSONError `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:        "ok",
		Services:      make(map[string]ServiceHealth, 2),
		UptimeSeconds: int(time.Since(s.started).Seconds()),
	}

	store := ServiceHealth{OK: true}
	if err := s.store.Health(ctx); err != nil {
		store = ServiceHealth{Error: err.Error()}
	}
	resp.Services["vector_store"] = store

	resp.Embedder = embed.GetInfo(ctx, s.embedder)
	embeddings := ServiceHealth{OK: resp.Embedder.Available}
	if !embeddings.OK {
		embeddings.Error = fmt.Sprintf("%s backend not reachable", resp.Embedder.Provider)
	}
	resp.Services["embeddings"] = embeddings

	if !store.OK || !embeddings.OK {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.indexer.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.searcher.Metrics().Snapshot())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	types, err := parseIndexType(r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results, err := s.indexer.IndexAll(r.Context(), types)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IndexResponse{Results: results})
}

// parseIndexType accepts captions, stories or all; empty means all.
func parseIndexType(v string) ([]document.ContentType, error) {
	if v == "" || v == "all" {
		return document.ContentTypes, nil
	}
	ct, err := document.ParseContentType(v)
	if err != nil {
		return nil, sverrors.InvalidInput(fmt.Sprintf("invalid type %q", v)).
			WithSuggestion("use type=captions, type=stories or type=all")
	}
	return []document.ContentType{ct}, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSearchRequest(r *http.Request) (search.Request, error) {
	q := r.URL.Query()
	req := search.Request{
		Query:       q.Get("q"),
		ContentType: document.ContentTypeCaptions,
	}

	if v := q.Get("type"); v != "" {
		req.ContentType = document.ContentType(v)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return req, sverrors.InvalidInput(fmt.Sprintf("limit must be a positive integer, got %q", v))
		}
		req.Limit = n
	}
	if v := q.Get("score_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, sverrors.InvalidInput(fmt.Sprintf("score_threshold must be a number, got %q", v))
		}
		req.ScoreThreshold = &f
	}
	return req, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := sverrors.HTTPStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request_failed",
		append([]any{
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
		}, sverrors.LogAttrs(err)...)...)

	writeJSON(w, status, errorBody{Error: sverrors.ToJSON(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
