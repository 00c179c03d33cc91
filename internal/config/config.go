package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/logging"
)

// Environment variables read by Load.
const (
	EnvConfigPath       = "CONFIG_PATH"
	EnvEmbeddingBackend = "EMBEDDING_BACKEND"
	EnvQdrantURL        = "QDRANT_URL"
)

// Embedding backend names.
const (
	BackendOllama               = "ollama"
	BackendSentenceTransformers = "sentence_transformers"
)

// Vector store backend names.
const (
	StoreQdrant = "qdrant"
	StoreMemory = "memory"
)

// Content types accepted by the indexer and search API.
const (
	TypeCaptions = "captions"
	TypeStories  = "stories"
)

// ContentTypes lists every content type in indexing order.
var ContentTypes = []string{TypeCaptions, TypeStories}

// defaultFileNames are looked up in the working directory when no path is given.
var defaultFileNames = []string{"config.yml", "config.yaml"}

// Config represents the complete storyvec configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Qdrant     QdrantConfig     `yaml:"qdrant" json:"qdrant"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`

	// Source is the file the configuration was read from, empty for defaults.
	Source string `yaml:"-" json:"-"`
}

// LoggingConfig configures the JSON log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL         string            `yaml:"url" json:"url"`
	APIKey      string            `yaml:"api_key" json:"-"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	Collections CollectionsConfig `yaml:"collections" json:"collections"`
}

// CollectionsConfig maps each content type to its collection name.
type CollectionsConfig struct {
	Captions string `yaml:"captions" json:"captions"`
	Stories  string `yaml:"stories" json:"stories"`
}

// StoreConfig selects the vector store implementation.
type StoreConfig struct {
	// Backend is "qdrant" (default) or "memory" (embedded HNSW graph).
	Backend string `yaml:"backend" json:"backend"`
	// Path is where the memory store persists its collections.
	Path string `yaml:"path" json:"path"`
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	Backend              string                     `yaml:"backend" json:"backend"`
	CacheSize            int                        `yaml:"cache_size" json:"cache_size"`
	Ollama               OllamaConfig               `yaml:"ollama" json:"ollama"`
	SentenceTransformers SentenceTransformersConfig `yaml:"sentence_transformers" json:"sentence_transformers"`
}

// OllamaConfig configures the remote Ollama backend.
type OllamaConfig struct {
	Model    string        `yaml:"model" json:"model"`
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// Dimensions of 0 means detect from the model on startup.
	Dimensions        int     `yaml:"dimensions" json:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// SentenceTransformersConfig configures the local backend.
type SentenceTransformersConfig struct {
	Model string `yaml:"model" json:"model"`
	// Endpoint, when set, points at an embedding server speaking
	// POST /embed {"inputs": [...]}. Empty runs the model in-process.
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
}

// IndexingConfig configures extraction and batch upserts.
type IndexingConfig struct {
	DataDir      string        `yaml:"data_dir" json:"data_dir"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	Workers      int           `yaml:"workers" json:"workers"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens"`
	ChunkOverlap int           `yaml:"chunk_overlap" json:"chunk_overlap"`
	Incremental  bool          `yaml:"incremental" json:"incremental"`
	StateDir     string        `yaml:"state_dir" json:"state_dir"`
}

// SearchConfig configures search defaults.
type SearchConfig struct {
	TopK           int     `yaml:"top_k" json:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// WatchConfig configures re-indexing on data directory changes.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:     "info",
			File:      logging.DefaultLogPath,
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Qdrant: QdrantConfig{
			URL:     "http://localhost:6333",
			Timeout: 30 * time.Second,
			Collections: CollectionsConfig{
				Captions: TypeCaptions,
				Stories:  TypeStories,
			},
		},
		Store: StoreConfig{
			Backend: StoreQdrant,
			Path:    filepath.Join(".storyvec", "vectors"),
		},
		Embeddings: EmbeddingsConfig{
			Backend:   BackendOllama,
			CacheSize: 1000,
			Ollama: OllamaConfig{
				Model:    "embeddinggemma:latest",
				Endpoint: "http://localhost:11434",
				Timeout:  60 * time.Second,
			},
			SentenceTransformers: SentenceTransformersConfig{
				Model:      "all-MiniLM-L6-v2",
				Dimensions: 384,
			},
		},
		Indexing: IndexingConfig{
			DataDir:      "data",
			BatchSize:    64,
			Workers:      min(runtime.NumCPU(), 4),
			RetryBackoff: 500 * time.Millisecond,
			MaxTokens:    512,
			ChunkOverlap: 32,
			StateDir:     ".storyvec",
		},
		Search: SearchConfig{
			TopK:           10,
			ScoreThreshold: 0.0,
		},
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute, // POST /index runs synchronously
			ShutdownTimeout: 10 * time.Second,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 2 * time.Second,
		},
	}
}

// Load builds the configuration in order of increasing precedence:
//  1. Defaults
//  2. The config file: path, else $CONFIG_PATH, else config.yml/config.yaml
//     in the working directory (none found means defaults only)
//  3. EMBEDDING_BACKEND and QDRANT_URL
//
// An explicitly named file that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	file, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := cfg.loadYAML(file); err != nil {
			return nil, err
		}
		cfg.Source = file
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, sverrors.ConfigError(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	return cfg, nil
}

// resolvePath returns the config file to read, or "" when none applies.
func resolvePath(path string) (string, error) {
	explicit := path
	if explicit == "" {
		explicit = os.Getenv(EnvConfigPath)
	}
	if explicit != "" {
		if !fileExists(explicit) {
			return "", sverrors.New(sverrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", explicit), nil).
				WithSuggestion("run `storyvec config init` or unset " + EnvConfigPath)
		}
		return explicit, nil
	}

	for _, name := range defaultFileNames {
		if fileExists(name) {
			return name, nil
		}
	}
	return "", nil
}

// loadYAML overlays the values present in the file onto c.
// Keys missing from the file keep their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sverrors.ConfigError(fmt.Sprintf("failed to read config file %s: %v", path, err), err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return sverrors.ConfigError(fmt.Sprintf("failed to parse config file %s: %v", path, err), err).
			WithDetail("path", path)
	}
	return nil
}

// applyEnvOverrides applies the environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv(EnvEmbeddingBackend)); v != "" {
		c.Embeddings.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvQdrantURL)); v != "" {
		c.Qdrant.URL = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}
	if c.Indexing.RetryBackoff < 0 {
		return fmt.Errorf("indexing.retry_backoff must be non-negative, got %s", c.Indexing.RetryBackoff)
	}
	if c.Indexing.MaxTokens <= 0 {
		return fmt.Errorf("indexing.max_tokens must be positive, got %d", c.Indexing.MaxTokens)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.MaxTokens {
		return fmt.Errorf("indexing.chunk_overlap must be in [0, max_tokens), got %d", c.Indexing.ChunkOverlap)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}

	switch c.Embeddings.Backend {
	case BackendOllama, BackendSentenceTransformers:
	default:
		return fmt.Errorf("embeddings.backend must be '%s' or '%s', got %q",
			BackendOllama, BackendSentenceTransformers, c.Embeddings.Backend)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}
	if c.Embeddings.Ollama.Dimensions < 0 || c.Embeddings.SentenceTransformers.Dimensions < 0 {
		return fmt.Errorf("embeddings dimensions must be non-negative")
	}
	if c.Embeddings.Ollama.RequestsPerSecond < 0 {
		return fmt.Errorf("embeddings.ollama.requests_per_second must be non-negative")
	}

	switch c.Store.Backend {
	case StoreQdrant:
		if c.Qdrant.URL == "" {
			return fmt.Errorf("qdrant.url is required when store.backend is %q", StoreQdrant)
		}
	case StoreMemory:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required when store.backend is %q", StoreMemory)
		}
	default:
		return fmt.Errorf("store.backend must be '%s' or '%s', got %q", StoreQdrant, StoreMemory, c.Store.Backend)
	}

	if c.Qdrant.Collections.Captions == "" || c.Qdrant.Collections.Stories == "" {
		return fmt.Errorf("qdrant.collections.captions and qdrant.collections.stories must be set")
	}
	if c.Qdrant.Collections.Captions == c.Qdrant.Collections.Stories {
		return fmt.Errorf("captions and stories must use different collections, both are %q", c.Qdrant.Collections.Captions)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// Collection returns the collection name for a content type.
func (c *Config) Collection(contentType string) (string, bool) {
	switch contentType {
	case TypeCaptions:
		return c.Qdrant.Collections.Captions, true
	case TypeStories:
		return c.Qdrant.Collections.Stories, true
	default:
		return "", false
	}
}

// LoggingSetup converts the logging section into logging.Config.
func (c *Config) LoggingSetup(toStderr bool) logging.Config {
	return logging.Config{
		Level:         c.Logging.Level,
		FilePath:      c.Logging.File,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: toStderr,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ValidContentType reports whether t is a known content type.
func ValidContentType(t string) bool {
	return t == TypeCaptions || t == TypeStories
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
