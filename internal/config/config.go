package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Log    LogConfig    `mapstructure:"log" validate:"required"`
	GCP    GCPConfig    `mapstructure:"gcp" validate:"required"`
	Gemini GeminiConfig `mapstructure:"gemini" validate:"required"`
	Cache  CacheConfig  `mapstructure:"cache"`
	RAG    RAGConfig    `mapstructure:"rag"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// GCPConfig contains Google Cloud project settings shared by BigQuery,
// Drive and the managed Gemini endpoint.
type GCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Location  string `mapstructure:"location" validate:"required"`
}

// GeminiConfig contains the batch generation client settings.
type GeminiConfig struct {
	// Backend selects the transport: "vertex" (managed endpoint) or "genai" (direct API).
	Backend           string        `mapstructure:"backend" validate:"required,oneof=vertex genai"`
	Model             string        `mapstructure:"model" validate:"required"`
	APIKey            string        `mapstructure:"api_key" validate:"required_if=Backend genai"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	Temperature       *float32      `mapstructure:"temperature" validate:"omitempty,gte=0,lte=2"`
	ResponseMIMEType  string        `mapstructure:"response_mime_type" validate:"omitempty,oneof=text/plain application/json text/x.enum"`
	BatchSize         int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"gte=1"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" validate:"gt=0"`
	CallTimeout       time.Duration `mapstructure:"call_timeout" validate:"gte=0"`
}

// CacheConfig contains the optional Redis response cache settings.
// An empty RedisURL disables caching.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url" validate:"omitempty,url"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// RAGConfig contains Vertex RAG Engine settings. Corpora listed here ground
// every generation call; the remaining fields drive corpus management.
type RAGConfig struct {
	Corpora           []string `mapstructure:"corpora"`
	TopK              int32    `mapstructure:"top_k" validate:"gte=0"`
	DistanceThreshold *float64 `mapstructure:"distance_threshold" validate:"omitempty,gte=0"`

	EmbeddingModel             string `mapstructure:"embedding_model" validate:"required"`
	ChunkSize                  int64  `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap               int64  `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	MaxEmbeddingRequestsPerMin int64  `mapstructure:"max_embedding_requests_per_min" validate:"gte=0"`
}
