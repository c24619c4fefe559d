package redact

import "github.com/akessl/schleuse/pkg/observability"

// reasoningKeys is the set of map keys stripped from every payload.
var reasoningKeys = map[string]struct{}{
	"reasoning_content": {},
}

// Sanitize returns a copy of v with every reasoning key removed at every
// nesting depth. Mappings and sequences are rebuilt; scalars are returned
// unchanged. The input is never mutated, and applying Sanitize twice is
// equivalent to applying it once.
func Sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, drop := reasoningKeys[k]; drop {
				observability.ReasoningKeysRemoved.Inc()
				continue
			}
			out[k] = Sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Sanitize(e)
		}
		return out
	default:
		return v
	}
}
