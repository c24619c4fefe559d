// Package redact removes internal reasoning content from generation output
// before it crosses the worker boundary. It operates on three shapes: a
// decoded JSON payload, a single SSE-framed line, or a sequence mixing both.
//
// The filter is structural and depth-unbounded: the reasoning key is removed
// from every nesting level of any mapping. Malformed streamed data is passed
// through unchanged rather than rejected, so a corrupt upstream chunk can
// never break the response stream.
package redact
