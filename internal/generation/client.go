package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/datafarmer/datafarmer/internal/redact"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Model is a remote text generation endpoint. Implementations must be safe
// for concurrent use; the client shares one Model across all in-flight requests.
type Model interface {
	// Name returns the model identifier used in logs, metrics and cache keys.
	Name() string

	// Generate performs a single remote call. Errors wrapping ErrContentBlocked
	// or ErrGenerationFailed are permanent and are not retried.
	Generate(ctx context.Context, content Content, opts GenerationOptions) (string, error)
}

// Client runs batches of requests against a Model.
// Its configuration is immutable after construction, so a Client may serve
// concurrent Generate calls.
type Client struct {
	model    Model
	cfg      Config
	logger   *slog.Logger
	cache    Cache
	recorder Recorder
}

// Option configures optional collaborators of a Client.
type Option func(*Client)

// WithCache enables response caching.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithRecorder enables attempt and outcome observations.
func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// NewClient validates cfg and returns a Client bound to model.
func NewClient(model Model, cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		model:  model,
		cfg:    cfg,
		logger: logger.With("component", "generation", "model", model.Name()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// AsyncResult is delivered by GenerateAsync once the batch has finished.
type AsyncResult struct {
	Result *Result
	Err    error
}

// GenerateAsync runs Generate in a new goroutine. The returned channel
// receives exactly one value and is then closed.
func (c *Client) GenerateAsync(ctx context.Context, requests []Request, opts ...CallOption) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		result, err := c.Generate(ctx, requests, opts...)
		ch <- AsyncResult{Result: result, Err: err}
	}()
	return ch
}

// Generate issues one remote call per request and blocks until every request
// has reached a terminal state.
//
// Requests are dispatched in consecutive chunks of at most the batch size;
// a chunk starts only after the previous one has fully drained. A request
// that fails after every attempt is recorded as a failed Outcome and the
// batch continues, so a batch with failures still returns a nil error.
//
// Precondition violations (empty prompt, unknown attachment kind, invalid
// options) fail the whole call before anything is dispatched. If ctx is
// cancelled no further chunk is started and the partial Result is returned
// together with ctx.Err().
func (c *Client) Generate(ctx context.Context, requests []Request, opts ...CallOption) (*Result, error) {
	settings, err := c.settings(opts)
	if err != nil {
		return nil, err
	}
	if err := validateRequests(requests); err != nil {
		return nil, err
	}

	result := newResult(len(requests), settings.progress)
	logger := c.logger.With("batch_id", result.BatchID.String())

	logger.InfoContext(ctx, "Starting batch generation",
		"requests", len(requests),
		"batch_size", settings.batchSize,
		"max_attempts", c.cfg.MaxAttempts)

	chunks := 0
	for start := 0; start < len(requests); start += settings.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+settings.batchSize, len(requests))
		chunks++

		logger.DebugContext(ctx, "Dispatching chunk",
			"chunk", chunks,
			"from", start,
			"to", end)

		var g errgroup.Group
		for _, req := range requests[start:end] {
			g.Go(func() error {
				result.add(c.dispatch(ctx, logger, req, settings.options))
				return nil
			})
		}
		// Workers never return an error; failures live in the outcomes.
		_ = g.Wait()
	}

	succeeded := len(result.Succeeded())
	logger.InfoContext(ctx, "Batch generation finished",
		"success_rate", fmt.Sprintf("%.2f%%", result.SuccessRate()*100),
		"succeeded", succeeded,
		"failed", result.Completed()-succeeded,
		"total", result.Total,
		"chunks", chunks)

	if err := ctx.Err(); err != nil {
		logger.WarnContext(ctx, "Batch generation cancelled",
			"completed", result.Completed(),
			"total", result.Total)
		return result, err
	}
	return result, nil
}

func validateRequests(requests []Request) error {
	for i, req := range requests {
		if strings.TrimSpace(req.Prompt) == "" {
			return fmt.Errorf("%w: %w (row %d, id %q)", ErrInvalidInput, ErrEmptyPrompt, i, req.ID)
		}
		for _, a := range req.Attachments {
			if !a.Kind.valid() {
				return fmt.Errorf("%w: unsupported attachment kind %s (row %d, id %q)",
					ErrInvalidConfig, a.Kind, i, req.ID)
			}
			if strings.TrimSpace(a.Path) == "" {
				return fmt.Errorf("%w: empty %s attachment path (row %d, id %q)",
					ErrInvalidInput, a.Kind, i, req.ID)
			}
		}
	}
	return nil
}

// dispatch drives one request to a terminal state. It never returns an error.
func (c *Client) dispatch(ctx context.Context, logger *slog.Logger, req Request, opts GenerationOptions) Outcome {
	start := time.Now()
	tracker := newRequestTracker(req.ID, logger)

	finish := func(o Outcome) Outcome {
		o.ID = req.ID
		o.Duration = time.Since(start)
		tracker.to(ctx, stateFor(o.Status))
		if c.recorder != nil {
			c.recorder.ObserveOutcome(c.model.Name(), o.Status, o.Duration)
		}
		return o
	}

	content, err := resolveContent(req, logger)
	if err != nil {
		logger.WarnContext(ctx, "Failed to resolve attachments", "id", req.ID, "error", redact.Error(err))
		return finish(failedOutcome(err, 0))
	}

	var key string
	if c.cache != nil {
		key = CacheKey(c.model.Name(), opts, content)
		text, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "Response cache lookup failed", "id", req.ID, "error", redact.Error(err))
		case ok:
			logger.DebugContext(ctx, "Response cache hit", "id", req.ID)
			return finish(Outcome{Status: StatusSucceeded, Text: text, Cached: true})
		}
	}

	attempts := 0
	var text string
	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), retry.NewConstant(c.cfg.RetryBackoff))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		tracker.to(ctx, StateDispatched)

		out, err := c.attempt(ctx, content, opts)
		if c.recorder != nil {
			c.recorder.ObserveAttempt(c.model.Name(), err)
		}
		if err == nil {
			text = out
			return nil
		}

		logger.WarnContext(ctx, "Generation attempt failed",
			"id", req.ID,
			"attempt", attempts,
			"max_attempts", c.cfg.MaxAttempts,
			"error", redact.Error(err))

		if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrGenerationFailed) {
			return err
		}
		if attempts < c.cfg.MaxAttempts {
			tracker.to(ctx, StateRetrying)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return finish(failedOutcome(err, attempts))
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, text); err != nil {
			logger.WarnContext(ctx, "Response cache store failed", "id", req.ID, "error", redact.Error(err))
		}
	}
	return finish(Outcome{Status: StatusSucceeded, Text: text, Attempts: attempts})
}

func (c *Client) attempt(ctx context.Context, content Content, opts GenerationOptions) (string, error) {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	return c.model.Generate(ctx, content, opts)
}

func failedOutcome(err error, attempts int) Outcome {
	return Outcome{
		Status:   StatusFailed,
		Text:     "Error: " + redact.Error(err),
		Err:      err,
		Attempts: attempts,
	}
}

func stateFor(s Status) RequestState {
	if s == StatusSucceeded {
		return StateSucceeded
	}
	return StateFailed
}
