// Package openaicompat implements the Compat backend handle: an
// OpenAI-compatible protocol wrapper around an existing vLLM engine.
// Batches are raw SSE wire lines, forwarded in the exact framing the
// OpenAI streaming API uses, so clients built against that protocol can
// consume the aggregated stream unmodified.
package openaicompat
