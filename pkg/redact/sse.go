package redact

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// DecodeLine filters a single SSE line of the form "data: <json>\n\n".
//
// Lines that do not carry the data prefix are returned unchanged, as is the
// end-of-stream sentinel "data: [DONE]\n\n", whose byte-for-byte form is a
// contract with downstream consumers. A payload that fails to parse as JSON
// is also returned unchanged; corrupt upstream data must never raise here.
// Otherwise the payload is sanitized and re-framed as compact JSON.
func DecodeLine(line string) string {
	if !strings.HasPrefix(line, dataPrefix) {
		return line
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])

	if payload == doneSentinel {
		return line
	}

	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return line
	}

	out, err := marshalCompact(Sanitize(v))
	if err != nil {
		return line
	}
	return dataPrefix + " " + out + "\n\n"
}

// marshalCompact serializes v without HTML escaping so multi-byte text
// reaches the client literally.
func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encode appends a newline; the SSE framing supplies its own.
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
