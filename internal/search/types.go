package search

import (
	"github.com/Aman-CERP/storyvec/internal/document"
)

// Request is one search call. Zero Limit and nil ScoreThreshold take the
// configured defaults.
type Request struct {
	Query          string
	ContentType    document.ContentType
	Limit          int
	ScoreThreshold *float64
}

// Result is one matching document.
type Result struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Meta echoes the effective parameters of a search.
type Meta struct {
	Limit          int     `json:"limit"`
	ScoreThreshold float64 `json:"score_threshold"`
	Total          int     `json:"total"`
	Collection     string  `json:"collection"`
	Model          string  `json:"model"`
	DurationMs     int64   `json:"duration_ms"`
}

// Response is the result of a search. Results is never nil.
type Response struct {
	Query       string               `json:"query"`
	ContentType document.ContentType `json:"type"`
	Results     []Result             `json:"results"`
	Meta        Meta                 `json:"meta"`
}
