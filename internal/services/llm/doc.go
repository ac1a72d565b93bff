// Package llm provides the OpenRouter chat client used by the analysis
// worker to score batches of call transcripts.
//
// Requests are JSON-mode completions at temperature 0. The client retries on
// HTTP 408/429/5xx, network timeouts, and empty completions with exponential
// backoff (base 1s, capped at 10s, 5 attempts by default). A Retry-After
// header overrides the computed delay. Context cancellation stops retries
// immediately.
//
// DecodeLLMJSON tolerates the formatting quirks models commonly produce, such
// as fenced code blocks or prose surrounding the JSON object.
package llm
