package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Dedup scopes.
const (
	DedupGlobal  = "global"
	DedupProject = "project"
)

// Config holds the configuration for the memory service.
// Environment variables are parsed from the COGNIO_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override drivers: auto, sqlite, postgres, memory
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`
	APIKey   string `envconfig:"API_KEY" default:""`

	// Storage
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/memory.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Embeddings
	EmbedProvider  string `envconfig:"EMBED_PROVIDER" default:"hashing"`
	EmbedModel     string `envconfig:"EMBED_MODEL" default:"all-minilm"`
	EmbedDimension int    `envconfig:"EMBED_DIMENSION" default:"384"`
	EmbedCacheSize int    `envconfig:"EMBED_CACHE_SIZE" default:"1024"`
	OllamaURL      string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL" default:""`

	// Ranking and paging
	DedupScope         string  `envconfig:"DEDUP_SCOPE" default:"global"`
	DefaultSearchLimit int     `envconfig:"DEFAULT_SEARCH_LIMIT" default:"5"`
	MaxSearchLimit     int     `envconfig:"MAX_SEARCH_LIMIT" default:"50"`
	DefaultThreshold   float64 `envconfig:"DEFAULT_THRESHOLD" default:"0.3"`
	MaxPageSize        int     `envconfig:"MAX_PAGE_SIZE" default:"100"`
	TopTags            int     `envconfig:"TOP_TAGS" default:"10"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"sqlite": true, "postgres": true, "memory": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("DB_DRIVER postgres requires POSTGRES_DSN")
	}

	switch c.EmbedProvider {
	case "hashing", "ollama", "openai":
	default:
		return fmt.Errorf("unsupported EMBED_PROVIDER: %s", c.EmbedProvider)
	}
	if c.EmbedProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("EMBED_PROVIDER openai requires OPENAI_API_KEY")
	}
	if c.EmbedDimension <= 0 {
		return fmt.Errorf("EMBED_DIMENSION must be positive, got %d", c.EmbedDimension)
	}

	switch c.DedupScope {
	case DedupGlobal, DedupProject:
	default:
		return fmt.Errorf("unsupported DEDUP_SCOPE: %s", c.DedupScope)
	}

	if c.DefaultSearchLimit <= 0 || c.MaxSearchLimit < c.DefaultSearchLimit {
		return fmt.Errorf("invalid search limits: default=%d max=%d", c.DefaultSearchLimit, c.MaxSearchLimit)
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("MAX_PAGE_SIZE must be positive, got %d", c.MaxPageSize)
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with COGNIO_
// Example: COGNIO_HTTP_PORT, COGNIO_DB_DRIVER
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("COGNIO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Int("embed_dimension", cfg.EmbedDimension).
		Str("dedup_scope", cfg.DedupScope).
		Bool("api_key_set", cfg.APIKey != "").
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		LogLevel:    "disabled",
		BuildTarget: "local",
		DBDriver:    "memory",
		HTTPPort:    8080,
	}

	cfg.EmbedProvider = "hashing"
	cfg.EmbedModel = "all-minilm"
	cfg.EmbedDimension = 384

	cfg.DedupScope = DedupGlobal
	cfg.DefaultSearchLimit = 5
	cfg.MaxSearchLimit = 50
	cfg.DefaultThreshold = 0.3
	cfg.MaxPageSize = 100
	cfg.TopTags = 10

	cfg.HealthIntervalSeconds = 1
	cfg.HealthProbeTimeoutSeconds = 1
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// DedupPerProject reports whether identical text in different projects is
// stored separately.
func (c *Config) DedupPerProject() bool {
	return c.DedupScope == DedupProject
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

func (c *Config) HealthProbeTimeout() time.Duration {
	return time.Duration(c.HealthProbeTimeoutSeconds) * time.Second
}
