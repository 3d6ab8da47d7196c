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

// Link styles for the search entry point. They only affect presentation.
const (
	LinkStyleButton = "button"
	LinkStyleLink   = "link"
	LinkStyleNone   = "none"
	LinkStyleForm   = "form"
)

// ProjectConfigNames are looked up, in order, in the working directory.
var ProjectConfigNames = []string{"indexedsearch.yaml", "indexedsearch.yml"}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INDEXEDSEARCH_"

// Config represents the complete indexedsearch configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Records RecordsConfig `yaml:"records" json:"records"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Events  EventsConfig  `yaml:"events" json:"events"`
	Server  ServerConfig  `yaml:"server" json:"server"`
}

// IndexConfig configures the full-text index.
type IndexConfig struct {
	// Dir holds the index files. Created when missing.
	Dir string `yaml:"dir" json:"dir"`

	// Backend selects the engine: "bleve" (default, single process) or
	// "sqlite" (FTS5, readers in other processes allowed).
	Backend string `yaml:"backend" json:"backend"`

	// WriterTimeout bounds waits for the index writer (e.g. "30s", "0" = wait forever).
	WriterTimeout string `yaml:"writer_timeout" json:"writer_timeout"`

	// ReconcileInterval re-runs reconciliation periodically while serving
	// (e.g. "1h", "0" = startup only).
	ReconcileInterval string `yaml:"reconcile_interval" json:"reconcile_interval"`

	// PruneUnprocessed removes documents whose entry regressed out of the
	// processed state. Default: false (documents stay until deleted).
	PruneUnprocessed bool `yaml:"prune_unprocessed" json:"prune_unprocessed"`

	// RecoverCorrupt rebuilds an index that fails integrity checks.
	RecoverCorrupt bool `yaml:"recover_corrupt" json:"recover_corrupt"`
}

// RecordsConfig configures the record store.
type RecordsConfig struct {
	// Path to the SQLite database file.
	Path string `yaml:"path" json:"path"`
	// Driver is "sqlite" (pure Go, default) or "sqlite3" (CGO).
	Driver string `yaml:"driver" json:"driver"`
}

// SearchConfig configures the query service.
type SearchConfig struct {
	MaxResults     int `yaml:"max_results" json:"max_results"`
	MaxQueryLength int `yaml:"max_query_length" json:"max_query_length"`
	CacheSize      int `yaml:"cache_size" json:"cache_size"`

	// UsersOnly restricts search to authenticated users.
	UsersOnly bool `yaml:"users_only" json:"users_only"`

	// LinkStyle is one of button, link, none or form. Unknown values
	// fall back to form.
	LinkStyle string `yaml:"link_style" json:"link_style"`
}

// EventsConfig configures change notification delivery.
type EventsConfig struct {
	// Async hands events to a worker pool instead of applying them inline.
	Async     bool `yaml:"async" json:"async"`
	Workers   int  `yaml:"workers" json:"workers"`
	QueueSize int  `yaml:"queue_size" json:"queue_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// UserHeader carries the authenticated username from a fronting proxy.
	UserHeader string `yaml:"user_header" json:"user_header"`
	LogLevel   string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:               defaultDataPath("index"),
			Backend:           "bleve",
			WriterTimeout:     "30s",
			ReconcileInterval: "0",
		},
		Records: RecordsConfig{
			Path:   defaultDataPath("media.db"),
			Driver: "sqlite",
		},
		Search: SearchConfig{
			MaxResults:     100,
			MaxQueryLength: 1024,
			CacheSize:      256,
			LinkStyle:      LinkStyleForm,
		},
		Events: EventsConfig{
			Workers:   4,
			QueueSize: 256,
		},
		Server: ServerConfig{
			Addr:       "127.0.0.1:6543",
			UserHeader: "X-Remote-User",
			LogLevel:   "info",
		},
	}
}

// defaultDataPath returns ~/.indexedsearch/<name>.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexedsearch", name)
	}
	return filepath.Join(home, ".indexedsearch", name)
}

// GetUserConfigPath returns the path to the user configuration file.
// Uses $XDG_CONFIG_HOME/indexedsearch/config.yaml, falling back to
// ~/.config/indexedsearch/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexedsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "indexedsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "indexedsearch", "config.yaml")
}

// FindProjectConfig returns the project config file in dir, or "".
func FindProjectConfig(dir string) string {
	for _, name := range ProjectConfigNames {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// Load loads configuration with precedence: defaults, user config, the
// project file in dir, then environment variables. Validation runs last.
func Load(dir string) (*Config, error) {
	return LoadFile(FindProjectConfig(dir))
}

// LoadFile is Load with an explicit project file. An empty path skips it;
// a path that does not exist is an error.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML decodes path over c, so keys absent from the file keep their
// current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies INDEXEDSEARCH_* environment variables.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := getenv("INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := getenv("WRITER_TIMEOUT"); v != "" {
		c.Index.WriterTimeout = v
	}
	if v := getenv("RECONCILE_INTERVAL"); v != "" {
		c.Index.ReconcileInterval = v
	}
	if v := getenv("PRUNE_UNPROCESSED"); v != "" {
		c.Index.PruneUnprocessed = parseBool(v)
	}

	if v := getenv("RECORDS_PATH"); v != "" {
		c.Records.Path = v
	}
	if v := getenv("RECORDS_DRIVER"); v != "" {
		c.Records.Driver = v
	}

	if v := getenv("MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := getenv("USERS_ONLY"); v != "" {
		c.Search.UsersOnly = parseBool(v)
	}
	if v := getenv("LINK_STYLE"); v != "" {
		c.Search.LinkStyle = v
	}

	if v := getenv("EVENTS_ASYNC"); v != "" {
		c.Events.Async = parseBool(v)
	}

	if v := getenv("ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}

// NormalizeLinkStyle lowercases style and maps unknown values to form.
func NormalizeLinkStyle(style string) string {
	s := strings.ToLower(strings.TrimSpace(style))
	switch s {
	case LinkStyleButton, LinkStyleLink, LinkStyleNone, LinkStyleForm:
		return s
	default:
		return LinkStyleForm
	}
}

// ShowForm reports whether the results page renders its own search form.
// With the form style the entry point already is a form.
func (s SearchConfig) ShowForm() bool {
	return NormalizeLinkStyle(s.LinkStyle) != LinkStyleForm
}

// WriterTimeoutDuration returns the parsed writer timeout.
func (c *Config) WriterTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.Index.WriterTimeout)
	return d
}

// ReconcileIntervalDuration returns the parsed reconcile interval.
func (c *Config) ReconcileIntervalDuration() time.Duration {
	d, _ := parseDuration(c.Index.ReconcileInterval)
	return d
}

// parseDuration accepts Go durations; empty and "0" mean zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that the configuration is valid. Link styles are
// normalized rather than rejected.
func (c *Config) Validate() error {
	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir must be set")
	}
	switch c.Index.Backend {
	case "", "bleve", "sqlite":
	default:
		return fmt.Errorf("index.backend must be 'bleve' or 'sqlite', got %q", c.Index.Backend)
	}
	if d, err := parseDuration(c.Index.WriterTimeout); err != nil || d < 0 {
		return fmt.Errorf("index.writer_timeout must be a non-negative duration, got %q", c.Index.WriterTimeout)
	}
	if d, err := parseDuration(c.Index.ReconcileInterval); err != nil || d < 0 {
		return fmt.Errorf("index.reconcile_interval must be a non-negative duration, got %q", c.Index.ReconcileInterval)
	}

	switch c.Records.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("records.driver must be 'sqlite' or 'sqlite3', got %q", c.Records.Driver)
	}

	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.MaxQueryLength <= 0 {
		return fmt.Errorf("search.max_query_length must be positive, got %d", c.Search.MaxQueryLength)
	}
	c.Search.LinkStyle = NormalizeLinkStyle(c.Search.LinkStyle)

	if c.Events.Workers < 0 || c.Events.QueueSize < 0 {
		return fmt.Errorf("events.workers and events.queue_size must not be negative")
	}

	if c.Server.LogLevel != "" && !validLogLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be debug, info, warn or error, got %q", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
