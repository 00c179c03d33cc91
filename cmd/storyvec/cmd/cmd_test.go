package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/storyvec/configs"
	"github.com/Aman-CERP/storyvec/internal/config"
	"github.com/Aman-CERP/storyvec/internal/index"
	"github.com/Aman-CERP/storyvec/internal/search"
)

// workspace is a temp directory holding data, state, logs and a config
// that uses the in-process embedder and the persisted memory store.
type workspace struct {
	root    string
	dataDir string
	config  string
	logFile string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	t.Setenv(config.EnvEmbeddingBackend, "")
	t.Setenv(config.EnvQdrantURL, "")
	t.Setenv(config.EnvConfigPath, "")

	root := t.TempDir()
	ws := &workspace{
		root:    root,
		dataDir: filepath.Join(root, "data"),
		config:  filepath.Join(root, "config.yml"),
		logFile: filepath.Join(root, "logs", "storyvec.log"),
	}
	require.NoError(t, os.MkdirAll(ws.dataDir, 0o755))

	cfg := fmt.Sprintf(`logging:
  level: debug
  file: %s
store:
  backend: memory
  path: %s
embeddings:
  backend: sentence_transformers
indexing:
  data_dir: %s
  state_dir: %s
  retry_backoff: 1ms
`, ws.logFile, filepath.Join(root, "vectors"), ws.dataDir, filepath.Join(root, "state"))
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o644))
	return ws
}

func (ws *workspace) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(ws.dataDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// run executes the root command with --config pointing at the workspace.
func (ws *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runRoot(t, append([]string{"--config", ws.config}, args...)...)
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(teardown)

	buf := &bytes.Buffer{}
	root := NewRootCmd()
	root.SetOut(buf)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// =============================================================================
// index / search
// =============================================================================

func TestIndexThenSearch_ThroughCLI(t *testing.T) {
	// Given: a captions tree
	ws := newWorkspace(t)
	ws.write(t, "captions/thread_1/page_1.yml", "text_processing:\n  corrected_text: \"missing girl\"\n")
	ws.write(t, "captions/thread_1/page_2.yml", "ocr:\n  full_text: Town council approves new budget for roads\n")

	// When: indexing captions
	out, err := ws.run(t, "index", "--type", "captions", "--json")

	// Then: both captions are indexed and the summary is JSON
	require.NoError(t, err)
	var results map[string]index.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Contains(t, results, "captions")
	assert.Equal(t, 2, results["captions"].Indexed)
	assert.Empty(t, results["captions"].FailedBatches)

	// When: searching in a separate invocation
	out, err = ws.run(t, "search", "missing", "girl", "--json", "-n", "1")

	// Then: the persisted memory store answers with the matching caption
	require.NoError(t, err)
	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "missing girl", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "missing girl", resp.Results[0].Text)
	assert.Equal(t, 1, resp.Meta.Limit)
}

func TestIndex_HumanOutput(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "stories/t/page_1.yml", "posts:\n  - first post\n  - second post\n")
	ws.write(t, "stories/t/page_2.yml", "posts: [\n")

	out, err := ws.run(t, "index", "--type", "stories")

	require.NoError(t, err)
	assert.Contains(t, out, "stories: indexed 2 documents")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "page_2.yml")
}

func TestIndex_InvalidType(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "index", "--type", "poems")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "poems")
}

func TestSearch_EmptyCollection(t *testing.T) {
	// Given: nothing has been indexed
	ws := newWorkspace(t)

	// When: searching
	out, err := ws.run(t, "search", "anything")

	// Then: no error, just an empty result
	require.NoError(t, err)
	assert.Contains(t, out, "no captions matched")
}

func TestSearch_RequiresQuery(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "search")

	assert.Error(t, err)
}

func TestSearch_ThresholdFlag(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "captions/a/page_1.yml", "text_processing:\n  corrected_text: harbour lights at dawn\n")
	_, err := ws.run(t, "index")
	require.NoError(t, err)

	// A threshold above any cosine score filters everything out.
	out, err := ws.run(t, "search", "harbour lights", "--threshold", "1.01", "--json")

	require.NoError(t, err)
	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Results)
	assert.InDelta(t, 1.01, resp.Meta.ScoreThreshold, 1e-9)
}

// =============================================================================
// health
// =============================================================================

func TestHealth_LocalBackends(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "health", "--json")

	require.NoError(t, err)
	var report healthReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "ok", report.Status)
	assert.True(t, report.Services["embeddings"].OK)
	assert.True(t, report.Services["vector_store"].OK)
	require.NotNil(t, report.Embedder)
	assert.Equal(t, 384, report.Embedder.Dimensions)
	assert.NotEmpty(t, report.Checks)
}

// =============================================================================
// config
// =============================================================================

func TestConfigInit_WritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	out, err := runRoot(t, "config", "init", "--path", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.ConfigTemplate, string(data))
}

func TestConfigInit_ExistingWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("# mine\n"), 0o644))

	out, err := runRoot(t, "config", "init", "--path", path)

	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
}

func TestConfigInit_ForceKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("# mine\n"), 0o644))

	_, err := runRoot(t, "config", "init", "--path", path, "--force")

	require.NoError(t, err)
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
}

func TestConfigShow_EffectiveConfig(t *testing.T) {
	ws := newWorkspace(t)
	t.Setenv(config.EnvQdrantURL, "http://qdrant.internal:6333")

	out, err := ws.run(t, "config", "show", "--json")

	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, ws.dataDir, cfg.Indexing.DataDir)
	assert.Equal(t, config.StoreMemory, cfg.Store.Backend)
	assert.Equal(t, "http://qdrant.internal:6333", cfg.Qdrant.URL)
}

func TestConfigShow_YAML(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "# source: "+ws.config)
	assert.Contains(t, out, "backend: sentence_transformers")
}

func TestConfigPath(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, ws.config, strings.TrimSpace(out))
}

// =============================================================================
// logs
// =============================================================================

func TestLogs_TailFiltersByLevel(t *testing.T) {
	// Given: a log file with info and error entries
	path := filepath.Join(t.TempDir(), "storyvec.log")
	lines := []string{
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"index_started","content_type":"captions"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"ERROR","msg":"batch_failed","batch":1}`,
		`{"time":"2026-01-02T10:00:02Z","level":"INFO","msg":"index_completed"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	// When: viewing errors only
	out, err := runRoot(t, "logs", "--file", path, "--level", "error", "--no-color")

	// Then: only the error line is printed
	require.NoError(t, err)
	assert.Contains(t, out, "batch_failed")
	assert.NotContains(t, out, "index_started")
	assert.NotContains(t, out, "index_completed")
}

func TestLogs_Filter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyvec.log")
	content := `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"search_completed","query":"storm"}
{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"search_completed","query":"harbour"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	out, err := runRoot(t, "logs", "--file", path, "--filter", "harbour", "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "harbour")
	assert.NotContains(t, out, "storm")
}

func TestLogs_InvalidFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyvec.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"bad level", []string{"logs", "--file", path, "--level", "loud"}},
		{"bad filter", []string{"logs", "--file", path, "--filter", "("}},
		{"missing file", []string{"logs", "--file", filepath.Join(t.TempDir(), "nope.log")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runRoot(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestIndex_WritesLogFile(t *testing.T) {
	ws := newWorkspace(t)
	ws.write(t, "captions/a/page_1.yml", "text_processing:\n  corrected_text: lighthouse\n")

	_, err := ws.run(t, "index", "--type", "captions")
	require.NoError(t, err)
	teardown()

	data, err := os.ReadFile(ws.logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "config_loaded")
}

func TestRoot_ProfileFlags(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	mem := filepath.Join(dir, "mem.prof")

	_, err := runRoot(t, "--profile-cpu", cpu, "--profile-mem", mem, "version", "--short")
	require.NoError(t, err)

	assert.FileExists(t, cpu)
	assert.FileExists(t, mem)
}
