package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "DATAFARMER"

// Defaults mirror the behaviour of the generation client when nothing is configured.
const (
	DefaultModel        = "gemini-2.5-flash-lite"
	DefaultBackend      = "vertex"
	DefaultLocation     = "us-central1"
	DefaultBatchSize    = 120
	DefaultMaxAttempts  = 2
	DefaultRetryBackoff = 60 * time.Second
	DefaultCallTimeout  = 5 * time.Minute
	DefaultCacheTTL     = 24 * time.Hour

	DefaultRAGEmbeddingModel    = "text-embedding-004"
	DefaultRAGChunkSize         = 512
	DefaultRAGChunkOverlap      = 100
	DefaultRAGEmbeddingRequests = 900
)

// Load configuration from environment variables only.
// Environment variables use the DATAFARMER_ prefix, e.g. DATAFARMER_GEMINI_MODEL.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an optional YAML file and environment variables.
// Environment variables take precedence over values from the file.
// Returns a populated Config struct or an error if loading/validation fails.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about; keys without
	// defaults must be bound explicitly.
	for _, key := range []string{
		"gcp.project_id",
		"gemini.api_key",
		"gemini.system_instruction",
		"gemini.temperature",
		"gemini.response_mime_type",
		"cache.redis_url",
		"rag.corpora",
		"rag.top_k",
		"rag.distance_threshold",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks a Config against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("gcp.location", DefaultLocation)
	v.SetDefault("gemini.backend", DefaultBackend)
	v.SetDefault("gemini.model", DefaultModel)
	v.SetDefault("gemini.batch_size", DefaultBatchSize)
	v.SetDefault("gemini.max_attempts", DefaultMaxAttempts)
	v.SetDefault("gemini.retry_backoff", DefaultRetryBackoff)
	v.SetDefault("gemini.call_timeout", DefaultCallTimeout)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("rag.embedding_model", DefaultRAGEmbeddingModel)
	v.SetDefault("rag.chunk_size", DefaultRAGChunkSize)
	v.SetDefault("rag.chunk_overlap", DefaultRAGChunkOverlap)
	v.SetDefault("rag.max_embedding_requests_per_min", DefaultRAGEmbeddingRequests)
}
