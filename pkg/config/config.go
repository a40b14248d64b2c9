// Package config loads engine configuration from defaults, an optional YAML
// file and environment overrides, then validates the invariants that must
// hold before any query runs.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/viper"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// Config holds all configuration for the application.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Index     IndexConfig     `mapstructure:"index"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ontology  OntologyConfig  `mapstructure:"ontology"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Provider string `mapstructure:"provider"` // memory, neo4j, pgvector
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	DSN      string `mapstructure:"dsn"` // postgres connection string for pgvector
}

// LLMConfig holds answer-generation configuration. Provider "none" disables
// the LLM; retrieval still works without one.
type LLMConfig struct {
	Provider      string  `mapstructure:"provider"` // openai, none
	Model         string  `mapstructure:"model"`
	SmallModel    string  `mapstructure:"small_model"`
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	ContextBudget int     `mapstructure:"context_budget"` // tokens of assembled context per answer
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai, local
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
	CacheTTL   string `mapstructure:"cache_ttl"` // Go duration, e.g. "24h"
}

// RetrievalConfig holds the scoring, selection and traversal parameters.
type RetrievalConfig struct {
	TopN               int     `mapstructure:"top_n"`
	K                  int     `mapstructure:"k"`
	DiversityWeight    float64 `mapstructure:"diversity_weight"`
	Depth              int     `mapstructure:"depth"`
	VectorWeight       float64 `mapstructure:"vector_weight"`
	RelationshipWeight float64 `mapstructure:"relationship_weight"`
	ImportanceWeight   float64 `mapstructure:"importance_weight"`
	PageRankIterations int     `mapstructure:"pagerank_iterations"`
	PageRankDamping    float64 `mapstructure:"pagerank_damping"`
	AnalyzeQueries     bool    `mapstructure:"analyze_queries"`
}

// OntologyConfig points at an optional relationship-table file and the
// event classes that gate traversal.
type OntologyConfig struct {
	TablePath    string   `mapstructure:"table_path"`
	EventClasses []string `mapstructure:"event_classes"`
}

// StorageConfig holds local storage paths.
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// TelemetryConfig configures the DuckDB error mirror.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration: defaults first, then the YAML file when path is
// set (or reliquary.yaml when one exists), then environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("reliquary")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)
	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("index.provider", "memory")
	v.SetDefault("index.uri", "bolt://localhost:7687")
	v.SetDefault("index.username", "neo4j")
	v.SetDefault("index.database", "neo4j")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.small_model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.context_budget", 6000)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.cache_ttl", "24h")

	v.SetDefault("retrieval.top_n", 25)
	v.SetDefault("retrieval.k", 6)
	v.SetDefault("retrieval.diversity_weight", 0.3)
	v.SetDefault("retrieval.depth", 2)
	v.SetDefault("retrieval.vector_weight", 0.5)
	v.SetDefault("retrieval.relationship_weight", 0.3)
	v.SetDefault("retrieval.importance_weight", 0.2)
	v.SetDefault("retrieval.pagerank_iterations", 20)
	v.SetDefault("retrieval.pagerank_damping", 0.85)
	v.SetDefault("retrieval.analyze_queries", false)

	v.SetDefault("storage.data_dir", "./data")

	v.SetDefault("telemetry.enabled", false)
}

// overrideWithEnv overrides config with environment variables.
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
		config.Embedding.APIKey = apiKey
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Index.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Index.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Index.Password = pass
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Index.DSN = dsn
	}

	if host := os.Getenv("RELIQUARY_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("RELIQUARY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}

// Validate enforces the startup invariants. Violations are fatal at
// construction and never checked again at query time.
func (c *Config) Validate() error {
	r := c.Retrieval
	weightSum := r.VectorWeight + r.RelationshipWeight + r.ImportanceWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return &types.ConfigurationError{
			Field:  "retrieval weights",
			Reason: fmt.Sprintf("vector, relationship and importance weights must sum to 1.0, got %g", weightSum),
		}
	}
	if r.VectorWeight < 0 || r.RelationshipWeight < 0 || r.ImportanceWeight < 0 {
		return &types.ConfigurationError{Field: "retrieval weights", Reason: "weights must be non-negative"}
	}
	if r.K < 1 {
		return &types.ConfigurationError{Field: "retrieval.k", Reason: "must be at least 1"}
	}
	if r.TopN < r.K {
		return &types.ConfigurationError{
			Field:  "retrieval.top_n",
			Reason: fmt.Sprintf("must be at least k (%d), got %d", r.K, r.TopN),
		}
	}
	if r.Depth < 0 {
		return &types.ConfigurationError{Field: "retrieval.depth", Reason: "must not be negative"}
	}
	if r.DiversityWeight < 0 || r.DiversityWeight > 1 {
		return &types.ConfigurationError{Field: "retrieval.diversity_weight", Reason: "must be in [0, 1]"}
	}
	if r.PageRankIterations < 1 {
		return &types.ConfigurationError{Field: "retrieval.pagerank_iterations", Reason: "must be at least 1"}
	}
	if r.PageRankDamping <= 0 || r.PageRankDamping >= 1 {
		return &types.ConfigurationError{Field: "retrieval.pagerank_damping", Reason: "must be in (0, 1)"}
	}

	switch c.Index.Provider {
	case "memory", "neo4j", "pgvector":
	default:
		return &types.ConfigurationError{
			Field:  "index.provider",
			Reason: fmt.Sprintf("unknown provider %q", c.Index.Provider),
		}
	}
	switch c.Embedding.Provider {
	case "openai", "local":
	default:
		return &types.ConfigurationError{
			Field:  "embedding.provider",
			Reason: fmt.Sprintf("unknown provider %q", c.Embedding.Provider),
		}
	}
	switch c.LLM.Provider {
	case "", "none", "openai":
	default:
		return &types.ConfigurationError{
			Field:  "llm.provider",
			Reason: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		}
	}

	if c.Storage.DataDir == "" {
		return &types.ConfigurationError{Field: "storage.data_dir", Reason: "must not be empty"}
	}
	return nil
}
