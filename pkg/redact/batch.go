package redact

import "github.com/akessl/schleuse/pkg/observability"

// FilterBatch dispatches a batch to the right filter by shape.
//
// A batch is exactly one of: a raw SSE line (string), a structured payload
// (mapping), or a sequence whose elements are each a line or a payload.
// The host platform delivers all three, so the dispatch is closed over
// these shapes; any other scalar passes through unchanged.
func FilterBatch(b any) any {
	switch t := b.(type) {
	case string:
		observability.BatchesFiltered.WithLabelValues("line").Inc()
		return DecodeLine(t)
	case map[string]any:
		observability.BatchesFiltered.WithLabelValues("payload").Inc()
		return Sanitize(t)
	case []any:
		observability.BatchesFiltered.WithLabelValues("sequence").Inc()
		out := make([]any, len(t))
		for i, e := range t {
			if s, ok := e.(string); ok {
				out[i] = DecodeLine(s)
			} else {
				out[i] = Sanitize(e)
			}
		}
		return out
	case []string:
		// Aggregated SSE streams arrive as a homogeneous line slice.
		observability.BatchesFiltered.WithLabelValues("sequence").Inc()
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = DecodeLine(s)
		}
		return out
	default:
		observability.BatchesFiltered.WithLabelValues("passthrough").Inc()
		return b
	}
}
