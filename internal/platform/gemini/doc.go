// Package gemini provides an implementation of the generation.Model interface
// backed by Google's Gemini models through the google.golang.org/genai SDK.
//
// The package is an infrastructure adapter: it translates between the
// SDK-agnostic generation.Content / generation.GenerationOptions types and the
// SDK's request and response types, without exposing the SDK to the batch
// client.
//
// Two backends are supported:
//
//   - "vertex": the managed Vertex AI endpoint, authenticated with
//     Application Default Credentials for a GCP project and location.
//   - "genai": the direct Gemini API endpoint, authenticated with an API key.
//
// Responses are classified into the generation package's error taxonomy:
//
//   - SDK and transport errors wrap generation.ErrTransientFailure
//   - prompt or candidate safety blocks wrap generation.ErrContentBlocked
//   - missing candidates or empty text wrap generation.ErrInvalidResponse
//
// Retries are not performed here; the batch client owns the retry policy.
package gemini
