package redact

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeLine_SentinelExact(t *testing.T) {
	line := "data: [DONE]\n\n"
	if got := DecodeLine(line); got != line {
		t.Errorf("DecodeLine(sentinel) = %q, want unchanged", got)
	}
}

func TestDecodeLine_MalformedPassthrough(t *testing.T) {
	tests := []string{
		"data: not-json\n\n",
		"data: {truncated\n\n",
		"data: \n\n",
	}
	for _, line := range tests {
		if got := DecodeLine(line); got != line {
			t.Errorf("DecodeLine(%q) = %q, want unchanged", line, got)
		}
	}
}

func TestDecodeLine_NonDataLinesUntouched(t *testing.T) {
	tests := []string{
		"",
		": comment line",
		"event: message",
		`{"reasoning_content":"bare json without framing"}`,
	}
	for _, line := range tests {
		if got := DecodeLine(line); got != line {
			t.Errorf("DecodeLine(%q) = %q, want unchanged", line, got)
		}
	}
}

func TestDecodeLine_RemovesReasoningAndReframes(t *testing.T) {
	line := "data: {\"a\":1,\"reasoning_content\":\"x\"}\n\n"
	got := DecodeLine(line)

	if !strings.HasPrefix(got, "data: ") || !strings.HasSuffix(got, "\n\n") {
		t.Fatalf("framing broken: %q", got)
	}

	payload := strings.TrimSuffix(strings.TrimPrefix(got, "data: "), "\n\n")
	var v map[string]any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		t.Fatalf("re-encoded payload is not JSON: %v", err)
	}
	if _, leaked := v["reasoning_content"]; leaked {
		t.Error("reasoning_content survived")
	}
	if v["a"] != float64(1) {
		t.Errorf("sibling value changed: %v", v["a"])
	}
}

func TestDecodeLine_MultiByteContentLiteral(t *testing.T) {
	line := "data: {\"content\":\"héllo wörld 日本語\"}\n\n"
	got := DecodeLine(line)

	if !strings.Contains(got, "héllo wörld 日本語") {
		t.Errorf("multi-byte content was escaped: %q", got)
	}
}

func TestDecodeLine_NoHTMLEscaping(t *testing.T) {
	line := "data: {\"content\":\"<b> & </b>\"}\n\n"
	got := DecodeLine(line)

	if strings.Contains(got, `<`) || strings.Contains(got, `&`) {
		t.Errorf("HTML characters were escaped: %q", got)
	}
}

func TestDecodeLine_PrefixWithoutSpace(t *testing.T) {
	// The prefix contract is "data:"; surrounding whitespace of the payload
	// is trimmed before parsing.
	line := "data:{\"reasoning_content\":\"x\",\"b\":2}\n\n"
	got := DecodeLine(line)

	if strings.Contains(got, "reasoning_content") {
		t.Errorf("reasoning content leaked: %q", got)
	}
	if !strings.Contains(got, `"b":2`) {
		t.Errorf("payload lost: %q", got)
	}
}
