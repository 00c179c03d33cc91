package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/storyvec/internal/document"
)

// TrackerFileSuffix names the per-collection incremental-mode state file
// under state_dir: <collection>.tracker.yml.
const TrackerFileSuffix = ".tracker.yml"

// Tracker remembers, per content type, the SHA-256 of every source file
// whose documents were all stored, and the model that embedded them.
// Incremental runs skip files whose hash is unchanged.
type Tracker struct {
	path string

	mu    sync.Mutex
	state map[document.ContentType]*trackedType
}

type trackedType struct {
	Model      string            `yaml:"model"`
	Dimensions int               `yaml:"dimensions"`
	Files      map[string]string `yaml:"files"`
}

// TrackerPath returns the state file of collection under stateDir.
func TrackerPath(stateDir, collection string) string {
	return filepath.Join(stateDir, collection+TrackerFileSuffix)
}

// LoadTracker reads the state file of collection; a missing file is an
// empty tracker. Each collection has its own file, so runs over different
// collections never write the same one; runs over one collection are
// serialized by Locks.
func LoadTracker(stateDir, collection string) (*Tracker, error) {
	t := &Tracker{
		path:  TrackerPath(stateDir, collection),
		state: make(map[document.ContentType]*trackedType),
	}

	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracker: %w", err)
	}
	if err := yaml.Unmarshal(data, &t.state); err != nil {
		return nil, fmt.Errorf("failed to parse tracker %s: %w", t.path, err)
	}
	if t.state == nil {
		t.state = make(map[document.ContentType]*trackedType)
	}
	return t, nil
}

// Unchanged reports whether relPath was stored with hash by the same model.
func (t *Tracker) Unchanged(ct document.ContentType, model string, dims int, relPath, hash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tt, ok := t.state[ct]
	if !ok || tt.Model != model || tt.Dimensions != dims {
		return false
	}
	return tt.Files[relPath] == hash
}

// Replace sets the tracked files for ct. A model change discards entries
// recorded for the previous model.
func (t *Tracker) Replace(ct document.ContentType, model string, dims int, files map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state[ct] = &trackedType{Model: model, Dimensions: dims, Files: files}
}

// Files returns a copy of the tracked files for ct.
func (t *Tracker) Files(ct document.ContentType) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]string)
	if tt, ok := t.state[ct]; ok {
		for k, v := range tt.Files {
			out[k] = v
		}
	}
	return out
}

// Save writes the tracker atomically.
func (t *Tracker) Save() error {
	t.mu.Lock()
	data, err := yaml.Marshal(t.state)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal tracker: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write tracker: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write tracker: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write tracker: %w", err)
	}
	return nil
}
