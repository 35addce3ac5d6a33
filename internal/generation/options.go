package generation

import (
	"encoding/json"
	"fmt"
)

// CallOption customizes a single Generate call.
type CallOption func(*callSettings)

type callSettings struct {
	batchSize int
	options   GenerationOptions
	progress  func(done, total int)
}

// WithBatchSize overrides the configured batch size for one call.
func WithBatchSize(n int) CallOption {
	return func(s *callSettings) {
		s.batchSize = n
	}
}

// WithGenerationOptions replaces the configured generation options for one
// call. The configured system instruction is kept unless opts sets its own.
func WithGenerationOptions(opts GenerationOptions) CallOption {
	return func(s *callSettings) {
		instruction := s.options.SystemInstruction
		s.options = opts
		if s.options.SystemInstruction == "" {
			s.options.SystemInstruction = instruction
		}
	}
}

// WithResponseSchema requests structured JSON output conforming to schema.
func WithResponseSchema(schema json.RawMessage) CallOption {
	return func(s *callSettings) {
		s.options.ResponseMIMEType = "application/json"
		s.options.ResponseSchema = schema
	}
}

// WithRetrieval grounds one call on the given RAG corpora.
func WithRetrieval(r Retrieval) CallOption {
	return func(s *callSettings) {
		s.options.Retrieval = &r
	}
}

// WithProgress registers fn to be called after each request finishes, with the
// number of finished requests and the batch total. Calls are serialized and
// done is strictly increasing.
func WithProgress(fn func(done, total int)) CallOption {
	return func(s *callSettings) {
		s.progress = fn
	}
}

func (c *Client) settings(opts []CallOption) (callSettings, error) {
	s := callSettings{
		batchSize: c.cfg.BatchSize,
		options:   c.cfg.Options,
	}
	s.options.SystemInstruction = c.cfg.SystemInstruction

	for _, opt := range opts {
		opt(&s)
	}

	if s.batchSize <= 0 {
		return s, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidInput, s.batchSize)
	}
	if err := s.options.validate(); err != nil {
		return s, err
	}
	return s, nil
}
