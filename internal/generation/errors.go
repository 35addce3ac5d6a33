package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when a generation fails for any general reason
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidResponse is returned when the LLM response cannot be used or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the client, its options or an attachment kind is invalid.
	// It fails the whole call before anything is dispatched.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrInvalidInput is returned when the batch input violates a precondition
	// (missing prompt column, empty prompt, non-positive batch size).
	// It fails the whole call before anything is dispatched.
	ErrInvalidInput = errors.New("invalid generation input")

	// ErrEmptyPrompt is returned, wrapped in ErrInvalidInput, for an empty prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)
