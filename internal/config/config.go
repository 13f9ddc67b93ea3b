package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the noterag API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Search    SearchConfig    `yaml:"search"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the remote store connection settings. Empty addrs means
// no remote backend is configured and the service starts on the local backend.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds key naming and HNSW index settings.
type StorageConfig struct {
	KeyPrefix       string `yaml:"key_prefix"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding provider settings. An empty api_key disables
// the provider; the deterministic local embedder serves everything.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	Retries        int    `yaml:"retries"`
	ExpansionModel string `yaml:"expansion_model"` // empty disables query expansion
}

// CacheConfig holds the embedding cache file settings.
type CacheConfig struct {
	Path       string `yaml:"path"`
	FlushEvery int    `yaml:"flush_every"`
}

// SnapshotConfig holds the local backend snapshot settings.
type SnapshotConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds hybrid ranking settings.
type SearchConfig struct {
	VectorWeight     float64  `yaml:"vector_weight"`
	KeywordWeight    float64  `yaml:"keyword_weight"`
	DefaultThreshold float64  `yaml:"default_threshold"`
	ShortThreshold   float64  `yaml:"short_threshold"`
	MediumThreshold  float64  `yaml:"medium_threshold"`
	BoostFactor      float64  `yaml:"boost_factor"`
	TechTerms        []string `yaml:"tech_terms"`
}

// DedupeConfig holds the duplicate-suppression window settings.
type DedupeConfig struct {
	TTLSec int `yaml:"ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// RemoteConfigured reports whether a remote store backend was configured.
func (c *Config) RemoteConfigured() bool {
	return len(c.Database.Addrs) > 0
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "noterag:"
	}
	if c.Storage.HNSWM <= 0 {
		c.Storage.HNSWM = 32
	}
	if c.Storage.HNSWEFConstruct <= 0 {
		c.Storage.HNSWEFConstruct = 400
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.Retries < 0 {
		c.Embedding.Retries = 0
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "data/embedding_cache.json"
	}
	if c.Cache.FlushEvery <= 0 {
		c.Cache.FlushEvery = 10
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = "data/notes_snapshot.json"
	}
	if c.Search.VectorWeight <= 0 {
		c.Search.VectorWeight = 0.7
	}
	if c.Search.KeywordWeight <= 0 {
		c.Search.KeywordWeight = 0.3
	}
	if c.Search.DefaultThreshold <= 0 {
		c.Search.DefaultThreshold = 0.20
	}
	if c.Search.ShortThreshold <= 0 {
		c.Search.ShortThreshold = 0.08
	}
	if c.Search.MediumThreshold <= 0 {
		c.Search.MediumThreshold = 0.12
	}
	if c.Search.BoostFactor <= 0 {
		c.Search.BoostFactor = 1.5
	}
	if c.Dedupe.TTLSec <= 0 {
		c.Dedupe.TTLSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Embedding.APIKey != "" && c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required when embedding.api_key is set")
	}
	if c.Search.VectorWeight+c.Search.KeywordWeight > 1.0+1e-9 {
		return fmt.Errorf("search weights must not exceed 1.0, got %0.2f",
			c.Search.VectorWeight+c.Search.KeywordWeight)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
