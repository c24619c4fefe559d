package integration

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

// collectSSEPayloads reads the SSE stream and returns the data payloads
// in order.
func collectSSEPayloads(t *testing.T, resp *http.Response) []string {
	t.Helper()
	defer resp.Body.Close()

	var payloads []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payloads = append(payloads, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading SSE stream: %v", err)
	}
	return payloads
}

func TestRunStreamsGenerationChunks(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/run", runJobBody("hello"))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	payloads := collectSSEPayloads(t, resp)
	if len(payloads) == 0 {
		t.Fatal("no SSE payloads received")
	}

	var content strings.Builder
	for _, p := range payloads {
		var chunk struct {
			Choices []struct {
				Delta map[string]any `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(p), &chunk); err != nil {
			t.Fatalf("payload is not a JSON chunk: %q: %v", p, err)
		}
		for _, c := range chunk.Choices {
			if s, ok := c.Delta["content"].(string); ok {
				content.WriteString(s)
			}
		}
	}
	if got := content.String(); got != "Hello, nice day!" {
		t.Errorf("assembled content = %q, want %q", got, "Hello, nice day!")
	}
}

func TestRunNeverLeaksReasoning(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/run", runJobBody("hello"))
	body := readBody(t, resp)

	if strings.Contains(body, "reasoning_content") {
		t.Errorf("stream contains reasoning_content key:\n%s", body)
	}
	for _, word := range []string{"greeted", "appropriate"} {
		if strings.Contains(body, word) {
			t.Errorf("stream leaks reasoning text %q:\n%s", word, body)
		}
	}
}

func TestRunPromptSelectsResponse(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/run", runJobBody("please count from 1 to 5"))
	body := readBody(t, resp)

	if !strings.Contains(body, "1") || !strings.Contains(body, "5") {
		t.Errorf("counting response missing digits:\n%s", body)
	}
}

func TestRunBackendFailureYieldsErrorBatch(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/run", runJobBody("trigger failure"))

	// The stream has already started by the time the backend fails, so the
	// transport reports the failure in-band rather than with a 5xx.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	payloads := collectSSEPayloads(t, resp)
	if len(payloads) == 0 {
		t.Fatal("no SSE payloads received")
	}

	last := payloads[len(payloads)-1]
	var errBatch struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(last), &errBatch); err != nil {
		t.Fatalf("final payload is not JSON: %q: %v", last, err)
	}
	if !strings.Contains(errBatch.Error.Message, "engine aborted") {
		t.Errorf("error message = %q, want engine abort text", errBatch.Error.Message)
	}
}

func TestRunOpenAIRouteStreamsWireLines(t *testing.T) {
	body := map[string]any{
		"input": map[string]any{
			"openai_route": true,
			"messages": []map[string]any{
				{"role": "user", "content": "hello"},
			},
		},
	}
	resp := postJSON(t, testEnv.BaseURL()+"/run", body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	raw := readBody(t, resp)
	if strings.Contains(raw, "reasoning_content") {
		t.Errorf("compat stream contains reasoning_content key:\n%s", raw)
	}
	// The compat route forwards the backend's wire lines, so the [DONE]
	// sentinel survives to the caller.
	if !strings.Contains(raw, "data: [DONE]") {
		t.Errorf("compat stream missing [DONE] sentinel:\n%s", raw)
	}
	if !strings.Contains(raw, "Hello") {
		t.Errorf("compat stream missing content tokens:\n%s", raw)
	}
}

func TestRunRejectsMalformedRequests(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", `{not json`, http.StatusBadRequest},
		{"missing input", `{"id":"job_x"}`, http.StatusBadRequest},
		{"input not object", `{"input":"text"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(testEnv.BaseURL()+"/run", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST /run: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var shaped map[string]map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&shaped); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if shaped["error"]["message"] == "" {
				t.Error("error body missing message")
			}
		})
	}
}
