// Package generation provides the batch generation client: it turns a table of
// prompts into a table of results by driving a remote LLM (Gemini) through the
// Model interface with bounded concurrency, fixed-backoff retries and per-row
// failure isolation.
//
// Requests are split into consecutive chunks of at most BatchSize. Chunks run
// one after another; the requests of a chunk run concurrently, and a chunk is
// fully drained before the next one starts. A request that still fails after
// MaxAttempts is recorded as a failed Outcome and never aborts its siblings.
//
// Outcomes are collected in completion order. Result.Frame materializes only
// the successful rows as an (id, result) table; failed rows are logged and
// remain available through Result.Failed.
//
// The package does not depend on any SDK. Transports implement Model (see
// internal/platform/gemini), and optional Cache and Recorder implementations
// plug in response caching and metrics.
package generation
