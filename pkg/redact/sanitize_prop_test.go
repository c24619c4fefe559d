package redact

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

// payloadGen generates arbitrary JSON-like values up to the given depth,
// with reasoning_content keys injected at random levels.
func payloadGen(depth int) *rapid.Generator[any] {
	scalar := rapid.OneOf(
		rapid.Custom(func(t *rapid.T) any { return rapid.String().Draw(t, "str") }),
		rapid.Custom(func(t *rapid.T) any { return rapid.Float64().Draw(t, "num") }),
		rapid.Custom(func(t *rapid.T) any { return rapid.Bool().Draw(t, "bool") }),
		rapid.Just[any](nil),
	)
	if depth <= 0 {
		return scalar
	}

	seq := rapid.Custom(func(t *rapid.T) any {
		n := rapid.IntRange(0, 3).Draw(t, "seqlen")
		out := make([]any, n)
		for i := range out {
			out[i] = payloadGen(depth-1).Draw(t, "elem")
		}
		return out
	})

	mapping := rapid.Custom(func(t *rapid.T) any {
		n := rapid.IntRange(0, 3).Draw(t, "maplen")
		out := make(map[string]any, n+1)
		for i := 0; i < n; i++ {
			k := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "key")
			out[k] = payloadGen(depth-1).Draw(t, "val")
		}
		if rapid.Bool().Draw(t, "inject") {
			out["reasoning_content"] = payloadGen(depth-1).Draw(t, "reasoning")
		}
		return out
	})

	return rapid.OneOf(scalar, seq, mapping)
}

// containsReasoningKey walks a payload looking for the reasoning key at
// any depth.
func containsReasoningKey(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if _, bad := reasoningKeys[k]; bad {
				return true
			}
			if containsReasoningKey(val) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if containsReasoningKey(e) {
				return true
			}
		}
	}
	return false
}

func TestSanitize_PropertyNoReasoningKeySurvives(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := payloadGen(5).Draw(t, "payload")
		if containsReasoningKey(Sanitize(v)) {
			t.Fatalf("reasoning key survived sanitization of %#v", v)
		}
	})
}

func TestSanitize_PropertyIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := payloadGen(5).Draw(t, "payload")
		once := Sanitize(v)
		if twice := Sanitize(once); !reflect.DeepEqual(once, twice) {
			t.Fatalf("second pass changed value: %#v vs %#v", once, twice)
		}
	})
}

func TestSanitize_PropertyCleanInputUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := payloadGen(5).Draw(t, "payload")
		clean := Sanitize(v)
		if !reflect.DeepEqual(clean, Sanitize(clean)) {
			t.Fatalf("clean payload altered: %#v", clean)
		}
	})
}
