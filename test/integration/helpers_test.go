// Package integration provides end-to-end tests for the worker.
//
// Tests run against the real HTTP adapter wired to the real engine
// pipeline, backed by a mock vLLM server. Both are started in-process
// using net/http/httptest, so the full path is exercised: lazy engine
// initialization, generation streaming, reasoning redaction, and job
// storage.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/akessl/schleuse/pkg/engine"
	"github.com/akessl/schleuse/pkg/provider"
	"github.com/akessl/schleuse/pkg/provider/openaicompat"
	"github.com/akessl/schleuse/pkg/provider/vllm"
	"github.com/akessl/schleuse/pkg/storage/memory"
	transporthttp "github.com/akessl/schleuse/pkg/transport/http"
)

// reasoningText is what the mock backend emits as reasoning_content.
// No test output may ever contain it.
const reasoningText = "The user greeted me, so a friendly greeting is appropriate."

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the worker server and mock backend for testing.
type TestEnvironment struct {
	WorkerServer *httptest.Server
	MockBackend  *httptest.Server
}

func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

// setupTestEnvironment creates a mock vLLM backend and a worker wired to it.
func setupTestEnvironment() *TestEnvironment {
	mockBackend := startMockBackend()

	newBase := func(ctx context.Context) (provider.Generator, error) {
		return vllm.New(ctx, vllm.Config{
			BaseURL:        mockBackend.URL,
			Model:          "mock-model",
			StartupTimeout: 10 * time.Second,
			ProbeInterval:  50 * time.Millisecond,
		})
	}
	newCompat := func(ctx context.Context, base provider.Generator) (provider.Generator, error) {
		vb, ok := base.(*vllm.Engine)
		if !ok {
			return nil, fmt.Errorf("unexpected base engine type %T", base)
		}
		return openaicompat.New(ctx, vb, openaicompat.Config{Warmup: false})
	}

	initializer := engine.NewInitializer(newBase, newCompat)
	advisor := engine.NewAdvisor(initializer, 4)
	handler := engine.NewHandler(initializer)

	store := memory.New(100)
	adapter := transporthttp.NewAdapter(handler, store, advisor, transporthttp.DefaultConfig())
	workerServer := httptest.NewServer(adapter.Handler())

	return &TestEnvironment{
		WorkerServer: workerServer,
		MockBackend:  mockBackend,
	}
}

// Teardown stops both servers.
func (env *TestEnvironment) Teardown() {
	if env.WorkerServer != nil {
		env.WorkerServer.Close()
	}
	if env.MockBackend != nil {
		env.MockBackend.Close()
	}
}

// BaseURL returns the worker server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.WorkerServer.URL
}

// --- HTTP helpers ---

// postJSON sends a POST request with JSON body and returns the response.
func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// getURL sends a GET request and returns the response.
func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

// deleteURL sends a DELETE request and returns the response.
func deleteURL(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("creating DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// decodeJSON reads the response body and decodes it into the target.
func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// runJobBody builds a /run request body with the given user prompt.
func runJobBody(prompt string) map[string]any {
	return map[string]any{
		"input": map[string]any{
			"messages": []map[string]any{
				{"role": "user", "content": prompt},
			},
		},
	}
}

// waitForTerminal polls the job status endpoint until the job leaves the
// running states or the timeout elapses, and returns the final record.
func waitForTerminal(t *testing.T, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := getURL(t, testEnv.BaseURL()+"/status/"+jobID)
		var rec map[string]any
		decodeJSON(t, resp, &rec)
		status, _ := rec["status"].(string)
		if status != "IN_QUEUE" && status != "IN_PROGRESS" {
			return rec
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}

// --- Mock backend ---

// startMockBackend creates an httptest server that mimics a vLLM server:
// readiness probe, models listing, and a streaming Chat Completions
// endpoint whose chunks carry reasoning_content deltas.
func startMockBackend() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "mock-model", "object": "model", "owned_by": "test"},
			},
		})
	})
	mux.HandleFunc("POST /v1/chat/completions", handleMockChatCompletions)

	return httptest.NewServer(mux)
}

func handleMockChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"messages"`
		Stream bool `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			if s, ok := req.Messages[i].Content.(string); ok {
				prompt = strings.ToLower(s)
				break
			}
		}
	}

	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	writeChunk := func(delta map[string]any) {
		chunk := map[string]any{
			"id":     "chatcmpl-mock-stream",
			"object": "chat.completion.chunk",
			"model":  req.Model,
			"choices": []any{
				map[string]any{"index": 0, "delta": delta, "finish_reason": nil},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	writeChunk(map[string]any{"role": "assistant"})

	// Reasoning deltas come first, as vLLM emits for reasoning models.
	for _, token := range strings.SplitAfter(reasoningText, " ") {
		writeChunk(map[string]any{"reasoning_content": token})
	}

	if strings.Contains(prompt, "trigger failure") {
		fmt.Fprintf(w, "data: %s\n\n", `{"error":{"message":"engine aborted the request","type":"internal_error"}}`)
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}

	tokens := []string{"Hello", ", ", "nice", " ", "day", "!"}
	if strings.Contains(prompt, "count from 1 to 5") {
		tokens = []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}
	for _, token := range tokens {
		writeChunk(map[string]any{"content": token})
	}

	finish := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  req.Model,
		"choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{}, "finish_reason": "stop"},
		},
	}
	data, _ := json.Marshal(finish)
	fmt.Fprintf(w, "data: %s\n\n", data)
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}
