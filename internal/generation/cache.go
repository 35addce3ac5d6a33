package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Cache stores generated text by request fingerprint.
type Cache interface {
	// Get returns the cached text and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Recorder receives per-attempt and per-request observations.
type Recorder interface {
	// ObserveAttempt is called after every remote call; err is nil on success.
	ObserveAttempt(model string, err error)
	ObserveOutcome(model string, status Status, elapsed time.Duration)
}

// CacheKey fingerprints everything that determines a response: the model,
// the effective options, the prompt and the attachment bytes. Keys follow
// file contents, so editing an attachment in place invalidates its entry.
func CacheKey(model string, opts GenerationOptions, content Content) string {
	type blob struct {
		MIMEType string `json:"mime_type"`
		Digest   string `json:"sha256"`
	}
	payload := struct {
		Model   string            `json:"model"`
		Options GenerationOptions `json:"options"`
		Prompt  string            `json:"prompt"`
		Blobs   []blob            `json:"blobs,omitempty"`
	}{Model: model, Options: opts, Prompt: content.Prompt}
	for _, b := range content.Blobs {
		sum := sha256.Sum256(b.Data)
		payload.Blobs = append(payload.Blobs, blob{MIMEType: b.MIMEType, Digest: hex.EncodeToString(sum[:])})
	}

	// Marshalling plain strings, numbers and raw JSON cannot fail.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
