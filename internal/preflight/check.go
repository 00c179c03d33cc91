package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/storyvec/internal/config"
	"github.com/Aman-CERP/storyvec/internal/document"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pass":
		*s = StatusPass
	case "warn":
		*s = StatusWarn
	case "fail":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the checks.
type Checker struct {
	minDiskBytes uint64
}

// Option configures a Checker.
type Option func(*Checker)

// WithMinDiskSpace overrides MinDiskSpaceBytes.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) {
		c.minDiskBytes = bytes
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{minDiskBytes: MinDiskSpaceBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check that applies to cfg.
func (c *Checker) RunAll(_ context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{
		c.CheckDataDir(cfg.Indexing.DataDir),
		c.CheckWritable("state_dir", cfg.Indexing.StateDir),
	}
	if cfg.Store.Backend == config.StoreMemory {
		results = append(results, c.CheckWritable("store_path", cfg.Store.Path))
	}
	results = append(results,
		c.CheckDiskSpace(cfg.Indexing.StateDir),
		c.CheckFileDescriptors(),
	)
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// Summary returns "failed", "ready_with_warnings" or "ready".
func Summary(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckDataDir requires dir to exist and warns when neither content root
// is present under it.
func (c *Checker) CheckDataDir(dir string) CheckResult {
	result := CheckResult{Name: "data_dir", Required: true}

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot access %s: %v", dir, err)
		result.Details = "set indexing.data_dir to the directory holding captions/ and stories/"
		return result
	case !info.IsDir():
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", dir)
		return result
	}

	var found []string
	for _, ct := range document.ContentTypes {
		if fi, err := os.Stat(filepath.Join(dir, string(ct))); err == nil && fi.IsDir() {
			found = append(found, string(ct))
		}
	}
	if len(found) == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s has no captions/ or stories/ directory", dir)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d content roots)", dir, len(found))
	return result
}

// CheckWritable creates dir if needed and probes it with a temp file.
func (c *Checker) CheckWritable(name, dir string) CheckResult {
	result := CheckResult{Name: name, Required: true}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}

	f, err := os.CreateTemp(dir, ".storyvec-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir
	return result
}
