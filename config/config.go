// Package config loads service configuration from an optional YAML file
// with environment-variable overrides for secrets.
package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/evermind-ai/evermind/memory"
)

// Config is the full service configuration.
type Config struct {
	// Addr is the HTTP listen address. Default: ":8080".
	Addr string `yaml:"addr"`

	// LogLevel is one of debug, info, warn, error. Default: "info".
	LogLevel string `yaml:"log_level"`

	// AuthDB is the path to the SQLite user database.
	// Default: "evermind-users.db".
	AuthDB string `yaml:"auth_db"`

	// Provider selects the generation backend: "gemini" or "anthropic".
	// Default: "gemini" (embeddings always use Gemini).
	Provider string `yaml:"provider"`

	Gemini    GeminiConfig    `yaml:"gemini"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Vector    VectorConfig    `yaml:"vector"`
	Graph     GraphConfig     `yaml:"graph"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// GeminiConfig configures the Gemini API client.
type GeminiConfig struct {
	APIKey          string `yaml:"api_key"`
	GenerativeModel string `yaml:"generative_model"`
	EmbeddingModel  string `yaml:"embedding_model"`
	Dimensions      int    `yaml:"dimensions"`
}

// AnthropicConfig configures the Anthropic API client.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `yaml:"provider"`

	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig configures the remote Qdrant backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// GraphConfig configures the optional Neo4j relationship graph.
type GraphConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MemoryConfig tunes the consolidation pipeline.
type MemoryConfig struct {
	MergeThreshold float64 `yaml:"merge_threshold"`
	SearchLimit    int     `yaml:"search_limit"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	CacheEntries   int64   `yaml:"cache_entries"`
}

// Load reads the config file (if path is non-empty), applies defaults,
// and overlays secrets from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, goerr.Wrap(err, "read config file", goerr.V("path", path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, goerr.Wrap(err, "parse config file", goerr.V("path", path))
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AuthDB == "" {
		c.AuthDB = "evermind-users.db"
	}
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if c.Vector.Provider == "" {
		c.Vector.Provider = "chromem"
	}
	if c.Memory.MergeThreshold == 0 {
		c.Memory.MergeThreshold = memory.DefaultConfig.MergeThreshold
	}
	if c.Memory.SearchLimit == 0 {
		c.Memory.SearchLimit = memory.DefaultConfig.SearchLimit
	}
	if c.Memory.TimeoutSeconds == 0 {
		c.Memory.TimeoutSeconds = int(memory.DefaultConfig.ProviderTimeout / time.Second)
	}
	if c.Memory.CacheEntries == 0 {
		c.Memory.CacheEntries = 4096
	}
}

// applyEnv overlays secrets from the environment, mirroring the env
// names the deployment already uses. Environment wins over file values.
func (c *Config) applyEnv() {
	setIfEnv(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setIfEnv(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setIfEnv(&c.Vector.Qdrant.APIKey, "QDRANT_API_KEY")
	setIfEnv(&c.Vector.Qdrant.Host, "QDRANT_HOST")
	setIfEnv(&c.Graph.URI, "NEO4J_URI")
	setIfEnv(&c.Graph.Username, "NEO4J_USERNAME")
	setIfEnv(&c.Graph.Password, "NEO4J_PASSWORD")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the selected providers have what they need.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return goerr.New("gemini api key is required (embeddings)", goerr.V("env", "GEMINI_API_KEY"))
	}
	switch c.Provider {
	case "gemini":
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return goerr.New("anthropic api key is required", goerr.V("env", "ANTHROPIC_API_KEY"))
		}
	default:
		return goerr.New("unknown generation provider", goerr.V("provider", c.Provider))
	}
	switch c.Vector.Provider {
	case "chromem", "qdrant":
	default:
		return goerr.New("unknown vector provider", goerr.V("provider", c.Vector.Provider))
	}
	if c.Graph.Enabled && c.Graph.URI == "" {
		return goerr.New("graph enabled but uri is empty", goerr.V("env", "NEO4J_URI"))
	}
	return nil
}

// ManagerConfig converts the tuning section into the manager's config.
func (c *Config) ManagerConfig() *memory.Config {
	return &memory.Config{
		MergeThreshold:  c.Memory.MergeThreshold,
		SearchLimit:     c.Memory.SearchLimit,
		ProviderTimeout: time.Duration(c.Memory.TimeoutSeconds) * time.Second,
	}
}
