package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
)

// newHTTPClient builds a pooled client. No client-level timeout is set;
// callers bound each request with a context deadline instead.
func newHTTPClient(poolSize int) (*http.Client, *http.Transport) {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	return &http.Client{Transport: transport}, transport
}

// doJSON sends in (when non-nil) and decodes a 200 response into out.
// Transport failures, timeouts and 5xx/429 statuses are BackendUnavailable;
// other statuses and undecodable bodies are BackendBadResponse. A caller
// cancellation is returned as is.
func doJSON(ctx context.Context, client *http.Client, backend, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return sverrors.InternalError("failed to marshal request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return sverrors.BackendUnavailable(fmt.Sprintf("invalid %s endpoint %q", backend, url), err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return transportError(backend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := fmt.Sprintf("%s returned status %d: %s", backend, resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return sverrors.BackendUnavailable(msg, nil)
		}
		return sverrors.BackendBadResponse(msg, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return sverrors.BackendBadResponse(fmt.Sprintf("failed to decode %s response", backend), err)
	}
	return nil
}

func transportError(backend string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return sverrors.BackendUnavailable(fmt.Sprintf("%s request timed out", backend), err)
	default:
		return sverrors.BackendUnavailable(fmt.Sprintf("failed to connect to %s", backend), err)
	}
}
