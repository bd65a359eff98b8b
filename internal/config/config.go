package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete labsearch configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Workspace  WorkspaceConfig  `yaml:"workspace" json:"workspace"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// WorkspaceConfig locates the records to index and the index itself.
type WorkspaceConfig struct {
	// Path is the workspace export (JSON or YAML). Relative paths resolve
	// against the directory the config was loaded from.
	Path string `yaml:"path" json:"path"`

	// DataDir holds embeddings.db and index.lock.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of: openai, gemini, claude, ollama, static.
	Provider string `yaml:"provider" json:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// API keys. Usually left empty and supplied through the providers'
	// standard environment variables instead.
	OpenAIAPIKey    string `yaml:"openai_api_key,omitempty" json:"-"`
	GeminiAPIKey    string `yaml:"gemini_api_key,omitempty" json:"-"`
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty" json:"-"`

	OpenAIBaseURL string `yaml:"openai_base_url,omitempty" json:"openai_base_url,omitempty"`
	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`

	// Timeout bounds a single provider HTTP request.
	Timeout string `yaml:"timeout" json:"timeout"`

	// QueryCacheSize is the LRU size for cached query embeddings.
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// IndexingConfig controls the indexing orchestrator.
type IndexingConfig struct {
	// BatchSize is the number of items embedded and upserted per sub-batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// AutoIndex builds the index in the background when the store is empty
	// and the provider is usable.
	AutoIndex bool `yaml:"auto_index" json:"auto_index"`

	// WatchDebounce coalesces workspace file events before reindexing.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// SearchConfig holds default query options.
type SearchConfig struct {
	Limit     int     `yaml:"limit" json:"limit"`
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// ANNMinRecords is the store size at which unscoped searches shortlist
	// candidates with the HNSW graph before exact ranking. 0 disables it.
	ANNMinRecords int `yaml:"ann_min_records" json:"ann_min_records"`

	// QueryStats records local query statistics shown by 'labsearch stats'.
	QueryStats bool `yaml:"query_stats" json:"query_stats"`
}

// StoreConfig configures the SQLite vector store.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver" json:"driver"`

	// BusyTimeoutMS is SQLite's busy_timeout.
	BusyTimeoutMS int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
}

// ServerConfig configures logging and the MCP server.
type ServerConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	Transport string `yaml:"transport" json:"transport"`
}

// Workspace config file names, in lookup order.
const (
	FileName    = ".labsearch.yaml"
	AltFileName = ".labsearch.yml"
)

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Workspace: WorkspaceConfig{
			Path:    "workspace.json",
			DataDir: ".labsearch",
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "openai",
			OllamaHost:     "http://localhost:11434",
			Timeout:        "30s",
			QueryCacheSize: 1000,
		},
		Indexing: IndexingConfig{
			BatchSize:     20,
			AutoIndex:     true,
			WatchDebounce: "500ms",
		},
		Search: SearchConfig{
			Limit:         20,
			Threshold:     0.35,
			ANNMinRecords: 5000,
			QueryStats:    true,
		},
		Store: StoreConfig{
			Driver:        "sqlite",
			BusyTimeoutMS: 5000,
		},
		Server: ServerConfig{
			LogLevel:  "info",
			Transport: "stdio",
		},
	}
}

// GetUserConfigPath returns the user configuration file path:
// $XDG_CONFIG_HOME/labsearch/config.yaml, or ~/.config/labsearch/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "labsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "labsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "labsearch", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for the workspace directory dir.
// Precedence, lowest to highest:
//  1. Defaults
//  2. User config (~/.config/labsearch/config.yaml)
//  3. Workspace config (.labsearch.yaml in dir)
//  4. Environment variables (LABSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{FileName, AltFileName} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
// Boolean fields cannot be distinguished from "unset" and are only
// overridden through the environment.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	setString(&c.Workspace.Path, other.Workspace.Path)
	setString(&c.Workspace.DataDir, other.Workspace.DataDir)

	setString(&c.Embeddings.Provider, other.Embeddings.Provider)
	setString(&c.Embeddings.Model, other.Embeddings.Model)
	setString(&c.Embeddings.OpenAIAPIKey, other.Embeddings.OpenAIAPIKey)
	setString(&c.Embeddings.GeminiAPIKey, other.Embeddings.GeminiAPIKey)
	setString(&c.Embeddings.AnthropicAPIKey, other.Embeddings.AnthropicAPIKey)
	setString(&c.Embeddings.OpenAIBaseURL, other.Embeddings.OpenAIBaseURL)
	setString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	setString(&c.Embeddings.Timeout, other.Embeddings.Timeout)
	setInt(&c.Embeddings.QueryCacheSize, other.Embeddings.QueryCacheSize)

	setInt(&c.Indexing.BatchSize, other.Indexing.BatchSize)
	setString(&c.Indexing.WatchDebounce, other.Indexing.WatchDebounce)

	setInt(&c.Search.Limit, other.Search.Limit)
	if other.Search.Threshold != 0 {
		c.Search.Threshold = other.Search.Threshold
	}
	setInt(&c.Search.ANNMinRecords, other.Search.ANNMinRecords)

	setString(&c.Store.Driver, other.Store.Driver)
	setInt(&c.Store.BusyTimeoutMS, other.Store.BusyTimeoutMS)

	setString(&c.Server.LogLevel, other.Server.LogLevel)
	setString(&c.Server.Transport, other.Server.Transport)
}

// applyEnvOverrides applies LABSEARCH_* environment variables.
// Unlike file values, these may set explicit zeros and false.
func (c *Config) applyEnvOverrides() {
	setString(&c.Workspace.Path, os.Getenv("LABSEARCH_WORKSPACE"))
	setString(&c.Workspace.DataDir, os.Getenv("LABSEARCH_DATA_DIR"))
	setString(&c.Embeddings.Provider, os.Getenv("LABSEARCH_PROVIDER"))
	setString(&c.Embeddings.Model, os.Getenv("LABSEARCH_MODEL"))
	setString(&c.Embeddings.OpenAIBaseURL, os.Getenv("LABSEARCH_OPENAI_BASE_URL"))
	setString(&c.Embeddings.OllamaHost, os.Getenv("LABSEARCH_OLLAMA_HOST"))
	setString(&c.Store.Driver, os.Getenv("LABSEARCH_STORE_DRIVER"))
	setString(&c.Server.LogLevel, os.Getenv("LABSEARCH_LOG_LEVEL"))

	if v := os.Getenv("LABSEARCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.BatchSize = n
		}
	}
	if v := os.Getenv("LABSEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.Limit = n
		}
	}
	if v := os.Getenv("LABSEARCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Search.Threshold = f
		}
	}
	if v := os.Getenv("LABSEARCH_AUTO_INDEX"); v != "" {
		c.Indexing.AutoIndex = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LABSEARCH_QUERY_STATS"); v != "" {
		c.Search.QueryStats = strings.EqualFold(v, "true") || v == "1"
	}
}

// resolvePaths anchors relative workspace paths at dir.
func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	if c.Workspace.Path != "" && !filepath.IsAbs(c.Workspace.Path) {
		c.Workspace.Path = filepath.Join(dir, c.Workspace.Path)
	}
	if c.Workspace.DataDir != "" && !filepath.IsAbs(c.Workspace.DataDir) {
		c.Workspace.DataDir = filepath.Join(dir, c.Workspace.DataDir)
	}
}

// ValidProviders lists the accepted embeddings.provider values.
var ValidProviders = []string{"openai", "gemini", "claude", "ollama", "static"}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	provider := strings.ToLower(c.Embeddings.Provider)
	known := false
	for _, p := range ValidProviders {
		if p == provider {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("embeddings.provider must be one of %s, got %q",
			strings.Join(ValidProviders, ", "), c.Embeddings.Provider)
	}

	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be between -1 and 1, got %f", c.Search.Threshold)
	}
	if c.Search.ANNMinRecords < 0 {
		return fmt.Errorf("search.ann_min_records must be non-negative, got %d", c.Search.ANNMinRecords)
	}

	if _, err := parseDuration("embeddings.timeout", c.Embeddings.Timeout); err != nil {
		return err
	}
	if _, err := parseDuration("indexing.watch_debounce", c.Indexing.WatchDebounce); err != nil {
		return err
	}

	switch c.Store.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("store.driver must be 'sqlite' or 'sqlite3', got %q", c.Store.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	return nil
}

// RequestTimeout returns embeddings.timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := parseDuration("embeddings.timeout", c.Embeddings.Timeout)
	return d
}

// WatchDebounce returns indexing.watch_debounce as a duration.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := parseDuration("indexing.watch_debounce", c.Indexing.WatchDebounce)
	return d
}

// DBPath returns the SQLite file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Workspace.DataDir, "embeddings.db")
}

// LockPath returns the cross-process indexing lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Workspace.DataDir, "index.lock")
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", field, v)
	}
	return d, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
