package generation

import (
	"fmt"
	"strings"
	"time"

	"github.com/datafarmer/datafarmer/internal/config"
)

// Defaults applied by DefaultConfig.
const (
	DefaultBatchSize    = 120
	DefaultMaxAttempts  = 2
	DefaultRetryBackoff = 60 * time.Second
)

// Config holds the client's construction-time settings.
type Config struct {
	// Model is the remote model identifier, e.g. "gemini-2.5-flash-lite".
	Model string

	// Backend selects the transport; it is validated here even though the
	// transport itself is built by the Model implementation.
	Backend Backend

	// SystemInstruction, when set, is sent with every request.
	SystemInstruction string

	// Options are the default generation options of every call.
	Options GenerationOptions

	// BatchSize is the default maximum number of in-flight requests.
	BatchSize int

	// MaxAttempts is the total number of attempts per request, first try included.
	MaxAttempts int

	// RetryBackoff is the fixed wait between attempts of the same request.
	RetryBackoff time.Duration

	// CallTimeout bounds a single attempt. Zero disables the bound.
	CallTimeout time.Duration
}

// DefaultConfig returns a Config for model on the managed backend with the
// default batch size, attempt count and backoff.
func DefaultConfig(model string) Config {
	return Config{
		Model:        model,
		Backend:      BackendVertex,
		BatchSize:    DefaultBatchSize,
		MaxAttempts:  DefaultMaxAttempts,
		RetryBackoff: DefaultRetryBackoff,
	}
}

// ConfigFromSettings converts the application's Gemini settings into a Config.
func ConfigFromSettings(s config.GeminiConfig) (Config, error) {
	backend, err := ParseBackend(s.Backend)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Model:             s.Model,
		Backend:           backend,
		SystemInstruction: s.SystemInstruction,
		Options: GenerationOptions{
			Temperature:      s.Temperature,
			ResponseMIMEType: s.ResponseMIMEType,
		},
		BatchSize:    s.BatchSize,
		MaxAttempts:  s.MaxAttempts,
		RetryBackoff: s.RetryBackoff,
		CallTimeout:  s.CallTimeout,
	}
	return cfg, cfg.Validate()
}

// RetrievalFromSettings returns the retrieval configured for every call, or
// nil when no corpora are set.
func RetrievalFromSettings(s config.RAGConfig) *Retrieval {
	if len(s.Corpora) == 0 {
		return nil
	}
	return &Retrieval{
		Corpora:                 s.Corpora,
		TopK:                    s.TopK,
		VectorDistanceThreshold: s.DistanceThreshold,
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("%w: retry backoff must be positive, got %s", ErrInvalidConfig, c.RetryBackoff)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: call timeout cannot be negative", ErrInvalidConfig)
	}
	return c.Options.validate()
}
