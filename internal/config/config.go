package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete routecore configuration: vector.*,
// search.*, hybrid.*, ingest.*.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Vector  VectorConfig `yaml:"vector" json:"vector"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Hybrid  HybridConfig `yaml:"hybrid" json:"hybrid"`
	Ingest  IngestConfig `yaml:"ingest" json:"ingest"`
	Server  ServerConfig `yaml:"server" json:"server"`
}

// VectorConfig configures the VectorStore singleton: storage location,
// embedding dimension, and the bounded caches the single-factory enforces.
type VectorConfig struct {
	// StoragePath is the filesystem root for tables, indexes, and snapshots.
	StoragePath string `yaml:"storage_path" json:"storage_path"`

	// Dimension is the embedding dimension. Fixed per table after creation;
	// writes of a different dimension fail with DimensionMismatch.
	Dimension int `yaml:"dimension" json:"dimension"`

	// IndexCacheSizeBytes is the cumulative byte cap on the open-index LRU
	// shared across all open tables.
	IndexCacheSizeBytes int64 `yaml:"index_cache_size_bytes" json:"index_cache_size_bytes"`

	// MaxCachedTables bounds the LRU of open table handles.
	MaxCachedTables int `yaml:"max_cached_tables" json:"max_cached_tables"`

	// EmbedderProvider and EmbedderModel select the embedding oracle.
	EmbedderProvider string `yaml:"embedder_provider" json:"embedder_provider"`
	EmbedderModel    string `yaml:"embedder_model" json:"embedder_model"`
	EmbedderEndpoint string `yaml:"embedder_endpoint" json:"embedder_endpoint"`
}

// SearchConfig configures confidence calibration and result caching.
type SearchConfig struct {
	// ActiveProfile selects the named calibration profile.
	ActiveProfile string `yaml:"active_profile" json:"active_profile"`

	// CacheMaxSize bounds the search-result LRU.
	CacheMaxSize int `yaml:"cache_max_size" json:"cache_max_size"`

	// MaxResults bounds the default result count when a caller does not
	// specify k explicitly.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// HybridConfig configures the weighted RRF fusion stage.
type HybridConfig struct {
	// Kappa is the RRF smoothing constant (k=60 is the conventional default
	// used by Azure AI Search and OpenSearch hybrid pipelines).
	Kappa int `yaml:"kappa" json:"kappa"`

	// FieldBoosts are the fixed keyword-field weights. Canonical values:
	// tool_name=5, intents=4, routing_keywords=3, description=1. Changing
	// these is a breaking behavioral change to ranking.
	FieldBoosts FieldBoostsConfig `yaml:"field_boosts" json:"field_boosts"`
}

// FieldBoostsConfig names the per-field keyword-index boost multipliers.
type FieldBoostsConfig struct {
	ToolName        float64 `yaml:"tool_name" json:"tool_name"`
	Intents         float64 `yaml:"intents" json:"intents"`
	RoutingKeywords float64 `yaml:"routing_keywords" json:"routing_keywords"`
	Description     float64 `yaml:"description" json:"description"`
}

// IngestConfig configures document chunking for the knowledge pipeline.
type IngestConfig struct {
	// ChunkSizeTokens and OverlapTokens parameterize the token-aware splitter.
	ChunkSizeTokens int `yaml:"chunk_size_tokens" json:"chunk_size_tokens"`
	OverlapTokens   int `yaml:"overlap_tokens" json:"overlap_tokens"`

	// ExtractImages enables optional PDF page-image side-artifact extraction.
	ExtractImages bool `yaml:"extract_images" json:"extract_images"`
}

// ServerConfig configures the MCP stdio adapter.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with the core's documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Vector: VectorConfig{
			StoragePath:         ".cache/omni-vector",
			Dimension:           1024,
			IndexCacheSizeBytes: 512 * 1024 * 1024,
			MaxCachedTables:     16,
			EmbedderProvider:    "",
			EmbedderModel:       "",
			EmbedderEndpoint:    "",
		},
		Search: SearchConfig{
			ActiveProfile: "balanced",
			CacheMaxSize:  500,
			MaxResults:    10,
		},
		Hybrid: HybridConfig{
			Kappa: 60,
			FieldBoosts: FieldBoostsConfig{
				ToolName:        5,
				Intents:         4,
				RoutingKeywords: 3,
				Description:     1,
			},
		},
		Ingest: IngestConfig{
			ChunkSizeTokens: 512,
			OverlapTokens:   64,
			ExtractImages:   false,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/routecore/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/routecore/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "routecore", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "routecore", "config.yaml")
	}
	return filepath.Join(home, ".config", "routecore", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory, applying layers of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/routecore/config.yaml)
//  3. Project config (.routecore.yaml in dir)
//  4. Environment variables (ROUTECORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile attempts to load configuration from .routecore.yaml or .routecore.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".routecore.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".routecore.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
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

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Vector.StoragePath != "" {
		c.Vector.StoragePath = other.Vector.StoragePath
	}
	if other.Vector.Dimension != 0 {
		c.Vector.Dimension = other.Vector.Dimension
	}
	if other.Vector.IndexCacheSizeBytes != 0 {
		c.Vector.IndexCacheSizeBytes = other.Vector.IndexCacheSizeBytes
	}
	if other.Vector.MaxCachedTables != 0 {
		c.Vector.MaxCachedTables = other.Vector.MaxCachedTables
	}
	if other.Vector.EmbedderProvider != "" {
		c.Vector.EmbedderProvider = other.Vector.EmbedderProvider
	}
	if other.Vector.EmbedderModel != "" {
		c.Vector.EmbedderModel = other.Vector.EmbedderModel
	}
	if other.Vector.EmbedderEndpoint != "" {
		c.Vector.EmbedderEndpoint = other.Vector.EmbedderEndpoint
	}

	if other.Search.ActiveProfile != "" {
		c.Search.ActiveProfile = other.Search.ActiveProfile
	}
	if other.Search.CacheMaxSize != 0 {
		c.Search.CacheMaxSize = other.Search.CacheMaxSize
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Hybrid.Kappa != 0 {
		c.Hybrid.Kappa = other.Hybrid.Kappa
	}
	if other.Hybrid.FieldBoosts.ToolName != 0 {
		c.Hybrid.FieldBoosts.ToolName = other.Hybrid.FieldBoosts.ToolName
	}
	if other.Hybrid.FieldBoosts.Intents != 0 {
		c.Hybrid.FieldBoosts.Intents = other.Hybrid.FieldBoosts.Intents
	}
	if other.Hybrid.FieldBoosts.RoutingKeywords != 0 {
		c.Hybrid.FieldBoosts.RoutingKeywords = other.Hybrid.FieldBoosts.RoutingKeywords
	}
	if other.Hybrid.FieldBoosts.Description != 0 {
		c.Hybrid.FieldBoosts.Description = other.Hybrid.FieldBoosts.Description
	}

	if other.Ingest.ChunkSizeTokens != 0 {
		c.Ingest.ChunkSizeTokens = other.Ingest.ChunkSizeTokens
	}
	if other.Ingest.OverlapTokens != 0 {
		c.Ingest.OverlapTokens = other.Ingest.OverlapTokens
	}
	if other.Ingest.ExtractImages {
		c.Ingest.ExtractImages = other.Ingest.ExtractImages
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies ROUTECORE_* environment variable overrides.
// These are CLI-layer conveniences, not part of the core's contract — no
// environment variable is ever required.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ROUTECORE_VECTOR_STORAGE_PATH"); v != "" {
		c.Vector.StoragePath = v
	}
	if v := os.Getenv("ROUTECORE_VECTOR_DIMENSION"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Vector.Dimension = d
		}
	}
	if v := os.Getenv("ROUTECORE_SEARCH_ACTIVE_PROFILE"); v != "" {
		c.Search.ActiveProfile = v
	}
	if v := os.Getenv("ROUTECORE_HYBRID_KAPPA"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Hybrid.Kappa = k
		}
	}
	if v := os.Getenv("ROUTECORE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("ROUTECORE_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// FindProjectRoot finds the project root directory by walking up from
// startDir looking for a .git directory or a .routecore.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".routecore.yaml")) ||
			fileExists(filepath.Join(currentDir, ".routecore.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("vector.dimension must be positive, got %d", c.Vector.Dimension)
	}
	if c.Vector.IndexCacheSizeBytes <= 0 {
		return fmt.Errorf("vector.index_cache_size_bytes must be positive, got %d", c.Vector.IndexCacheSizeBytes)
	}
	if c.Vector.MaxCachedTables <= 0 {
		return fmt.Errorf("vector.max_cached_tables must be positive, got %d", c.Vector.MaxCachedTables)
	}

	if c.Search.CacheMaxSize < 0 {
		return fmt.Errorf("search.cache_max_size must be non-negative, got %d", c.Search.CacheMaxSize)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}

	if c.Hybrid.Kappa <= 0 {
		return fmt.Errorf("hybrid.kappa must be positive, got %d", c.Hybrid.Kappa)
	}
	boosts := []struct {
		name string
		v    float64
	}{
		{"tool_name", c.Hybrid.FieldBoosts.ToolName},
		{"intents", c.Hybrid.FieldBoosts.Intents},
		{"routing_keywords", c.Hybrid.FieldBoosts.RoutingKeywords},
		{"description", c.Hybrid.FieldBoosts.Description},
	}
	for _, b := range boosts {
		if b.v <= 0 {
			return fmt.Errorf("hybrid.field_boosts.%s must be positive, got %f", b.name, b.v)
		}
	}

	if c.Ingest.ChunkSizeTokens <= 0 {
		return fmt.Errorf("ingest.chunk_size_tokens must be positive, got %d", c.Ingest.ChunkSizeTokens)
	}
	if c.Ingest.OverlapTokens < 0 || c.Ingest.OverlapTokens >= c.Ingest.ChunkSizeTokens {
		return fmt.Errorf("ingest.overlap_tokens must be in [0, chunk_size_tokens), got %d", c.Ingest.OverlapTokens)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
