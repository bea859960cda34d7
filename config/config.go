package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	ConfigDir      = ".vaultmind"
	ConfigFileName = "config.yaml"
	IndexFileName  = "index.gob"
	GraphFileName  = "graph.json"
)

type Config struct {
	Version  int            `yaml:"version"`
	Vault    VaultConfig    `yaml:"vault"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Store    StoreConfig    `yaml:"store"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Watch    WatchConfig    `yaml:"watch"`
	Graph    GraphConfig    `yaml:"graph"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Suggest  SuggestConfig  `yaml:"suggest"`
}

type VaultConfig struct {
	// ExcludedFolders are vault-relative folders whose notes are never
	// parsed, indexed, or watched.
	ExcludedFolders []string `yaml:"excluded_folders"`
}

type EmbedderConfig struct {
	Provider   string `yaml:"provider"` // ollama | lmstudio | openai | synthetic
	Model      string `yaml:"model"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Dimensions *int   `yaml:"dimensions,omitempty"`
	BatchSize  int    `yaml:"batch_size"`
}

// GetDimensions returns the configured dimensions or the provider default.
func (e *EmbedderConfig) GetDimensions() int {
	if e.Dimensions != nil {
		return *e.Dimensions
	}
	switch e.Provider {
	case "openai":
		return 1536 // text-embedding-3-small
	default:
		return 768 // nomic-embed-text
	}
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"` // gob | postgres | qdrant
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type QdrantConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
}

type ChunkingConfig struct {
	// MaxTokens bounds a single chunk, estimated at ~4 chars per token.
	MaxTokens int `yaml:"max_tokens"`
}

type WatchConfig struct {
	DebounceMs                int   `yaml:"debounce_ms"`
	HashStabilityCheck        *bool `yaml:"hash_stability_check,omitempty"`
	ReextractGraph            bool  `yaml:"reextract_graph"`
	BatchGraphIntervalSeconds int   `yaml:"batch_graph_interval_seconds"`
}

// StabilityCheckEnabled reports whether the two-read hash stability check
// runs after each debounce window. Defaults to on.
func (w *WatchConfig) StabilityCheckEnabled() bool {
	return w.HashStabilityCheck == nil || *w.HashStabilityCheck
}

type GraphConfig struct {
	LLMProvider   string  `yaml:"llm_provider"` // openai-compatible
	LLMModel      string  `yaml:"llm_model"`
	LLMEndpoint   string  `yaml:"llm_endpoint,omitempty"`
	LLMAPIKey     string  `yaml:"llm_api_key,omitempty"`
	LLMTimeoutMs  int     `yaml:"llm_timeout_ms"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type DedupConfig struct {
	Enabled            *bool   `yaml:"enabled,omitempty"`
	MinContentLength   int     `yaml:"min_content_length"`
	DuplicateThreshold float32 `yaml:"duplicate_threshold"`
	MergeThreshold     float32 `yaml:"merge_threshold"`
}

func (d *DedupConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

type SuggestConfig struct {
	Enabled          *bool   `yaml:"enabled,omitempty"`
	MinContentLength int     `yaml:"min_content_length"`
	MinSimilarity    float32 `yaml:"min_similarity"`
	MaxSimilarity    float32 `yaml:"max_similarity"`
	EntityWeight     float32 `yaml:"entity_weight"`
	GraphWeight      float32 `yaml:"graph_weight"`
	MaxResults       int     `yaml:"max_results"`
}

func (s *SuggestConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func DefaultConfig() *Config {
	defaultDim := 768
	return &Config{
		Version: 1,
		Vault: VaultConfig{
			ExcludedFolders: []string{
				".obsidian",
				".git",
				".trash",
				".vaultmind",
				"06-templates",
			},
		},
		Embedder: EmbedderConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Endpoint:   "http://localhost:11434",
			Dimensions: &defaultDim,
			BatchSize:  64,
		},
		Store: StoreConfig{
			Backend: "gob",
		},
		Chunking: ChunkingConfig{
			MaxTokens: 500,
		},
		Watch: WatchConfig{
			DebounceMs:                500,
			ReextractGraph:            false,
			BatchGraphIntervalSeconds: 300,
		},
		Graph: GraphConfig{
			LLMProvider:   "ollama",
			LLMModel:      "llama3.1",
			LLMEndpoint:   "http://localhost:11434/v1",
			LLMTimeoutMs:  30000,
			MinConfidence: 0.7,
		},
		Dedup: DedupConfig{
			MinContentLength:   80,
			DuplicateThreshold: 0.92,
			MergeThreshold:     0.80,
		},
		Suggest: SuggestConfig{
			MinContentLength: 80,
			MinSimilarity:    0.70,
			MaxSimilarity:    0.80,
			EntityWeight:     0.05,
			GraphWeight:      0.10,
			MaxResults:       5,
		},
	}
}

func GetConfigDir(vaultRoot string) string {
	return filepath.Join(vaultRoot, ConfigDir)
}

func GetConfigPath(vaultRoot string) string {
	return filepath.Join(GetConfigDir(vaultRoot), ConfigFileName)
}

func GetIndexPath(vaultRoot string) string {
	return filepath.Join(GetConfigDir(vaultRoot), IndexFileName)
}

func GetGraphPath(vaultRoot string) string {
	return filepath.Join(GetConfigDir(vaultRoot), GraphFileName)
}

func Load(vaultRoot string) (*Config, error) {
	configPath := GetConfigPath(vaultRoot)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing values so older config files keep working.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if len(c.Vault.ExcludedFolders) == 0 {
		c.Vault.ExcludedFolders = defaults.Vault.ExcludedFolders
	}

	if c.Embedder.Endpoint == "" {
		switch c.Embedder.Provider {
		case "ollama":
			c.Embedder.Endpoint = "http://localhost:11434"
		case "lmstudio":
			c.Embedder.Endpoint = "http://127.0.0.1:1234"
		case "openai":
			c.Embedder.Endpoint = "https://api.openai.com/v1"
		default:
			c.Embedder.Endpoint = defaults.Embedder.Endpoint
		}
	}
	if c.Embedder.Dimensions == nil {
		switch c.Embedder.Provider {
		case "ollama", "lmstudio":
			dim := 768
			c.Embedder.Dimensions = &dim
		}
	}
	if c.Embedder.BatchSize <= 0 {
		c.Embedder.BatchSize = defaults.Embedder.BatchSize
	}

	if c.Chunking.MaxTokens <= 0 {
		c.Chunking.MaxTokens = defaults.Chunking.MaxTokens
	}

	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = defaults.Watch.DebounceMs
	}
	if c.Watch.BatchGraphIntervalSeconds <= 0 {
		c.Watch.BatchGraphIntervalSeconds = defaults.Watch.BatchGraphIntervalSeconds
	}

	if c.Graph.LLMTimeoutMs <= 0 {
		c.Graph.LLMTimeoutMs = defaults.Graph.LLMTimeoutMs
	}
	if c.Graph.MinConfidence <= 0 {
		c.Graph.MinConfidence = defaults.Graph.MinConfidence
	}

	if c.Dedup.MinContentLength <= 0 {
		c.Dedup.MinContentLength = defaults.Dedup.MinContentLength
	}
	if c.Dedup.DuplicateThreshold <= 0 {
		c.Dedup.DuplicateThreshold = defaults.Dedup.DuplicateThreshold
	}
	if c.Dedup.MergeThreshold <= 0 {
		c.Dedup.MergeThreshold = defaults.Dedup.MergeThreshold
	}

	if c.Suggest.MinContentLength <= 0 {
		c.Suggest.MinContentLength = defaults.Suggest.MinContentLength
	}
	if c.Suggest.MinSimilarity <= 0 {
		c.Suggest.MinSimilarity = defaults.Suggest.MinSimilarity
	}
	if c.Suggest.MaxSimilarity <= 0 {
		c.Suggest.MaxSimilarity = defaults.Suggest.MaxSimilarity
	}
	if c.Suggest.EntityWeight <= 0 {
		c.Suggest.EntityWeight = defaults.Suggest.EntityWeight
	}
	if c.Suggest.GraphWeight <= 0 {
		c.Suggest.GraphWeight = defaults.Suggest.GraphWeight
	}
	if c.Suggest.MaxResults <= 0 {
		c.Suggest.MaxResults = defaults.Suggest.MaxResults
	}

	if c.Store.Backend == "qdrant" && c.Store.Qdrant.Port <= 0 {
		c.Store.Qdrant.Port = 6334
	}
}

func (c *Config) Save(vaultRoot string) error {
	configDir := GetConfigDir(vaultRoot)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := GetConfigPath(vaultRoot)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists(vaultRoot string) bool {
	_, err := os.Stat(GetConfigPath(vaultRoot))
	return err == nil
}

// FindVaultRoot walks up from the working directory until it finds a
// directory containing .vaultmind/config.yaml.
func FindVaultRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	cwd, err = filepath.EvalSymlinks(cwd)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	dir := cwd
	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("no vault found: run 'vaultmind init' inside your vault first")
}
