// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (FLEETMECH_* plus GEMINI_API_KEY)
//  2. Config file (./config.yaml or ~/.fleetmech/config.yaml)
//  3. Default values
//
// Validation uses sentinel errors so callers can match failure classes
// with errors.Is().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the Gemini API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModel indicates a model identifier is empty.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates top_k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidContextLength indicates max_context_length is out of range.
	ErrInvalidContextLength = errors.New("invalid max context length")

	// ErrInvalidTimeout indicates request_timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid request timeout")

	// ErrInvalidStoreDriver indicates an unknown store driver.
	ErrInvalidStoreDriver = errors.New("invalid store driver")

	// ErrInvalidStorePath indicates the sqlite store path is empty.
	ErrInvalidStorePath = errors.New("invalid store path")

	// ErrMissingDatabaseURL indicates the postgres driver was selected
	// without a connection URL.
	ErrMissingDatabaseURL = errors.New("missing database URL")
)

// Store driver identifiers used in Config.StoreDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config stores application configuration.
type Config struct {
	// AI model configuration
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`
	ModelName      string `mapstructure:"model_name"`
	EmbedderModel  string `mapstructure:"embedder_model"`
	EmbedDimension int32  `mapstructure:"embed_dimension"`

	// Vector store configuration
	StoreDriver string `mapstructure:"store_driver"`
	StorePath   string `mapstructure:"store_path"`
	DatabaseURL string `mapstructure:"database_url"`

	// Retrieval configuration
	ChunkSize        int `mapstructure:"chunk_size"`
	ChunkOverlap     int `mapstructure:"chunk_overlap"`
	TopK             int `mapstructure:"top_k"`
	MaxContextLength int `mapstructure:"max_context_length"`

	// External service behavior
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	EmbedBatchSize int           `mapstructure:"embed_batch_size"`
	EmbedRateLimit float64       `mapstructure:"embed_rate_limit"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".fleetmech"))
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	// gemini-embedding-001 defaults to 3072 dimensions; 768 keeps the
	// store compact via Matryoshka truncation.
	v.SetDefault("embed_dimension", 768)

	v.SetDefault("store_driver", DriverSQLite)
	v.SetDefault("store_path", filepath.Join("data", "fleetmech.db"))
	v.SetDefault("database_url", "")

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("top_k", 5)
	v.SetDefault("max_context_length", 4000)

	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_base_delay", 500*time.Millisecond)
	v.SetDefault("retry_max_delay", 10*time.Second)
	v.SetDefault("embed_batch_size", 50)
	v.SetDefault("embed_rate_limit", 5.0)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("FLEETMECH")
	v.AutomaticEnv()

	// The API key follows the SDK convention rather than the app prefix.
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "FLEETMECH_GEMINI_API_KEY")
	_ = v.BindEnv("database_url", "DATABASE_URL", "FLEETMECH_DATABASE_URL")
}
