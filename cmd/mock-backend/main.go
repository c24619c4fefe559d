// Command mock-backend runs a deterministic vLLM-compatible server for
// local development and end-to-end testing. It streams Chat Completions
// chunks with reasoning_content deltas so the redaction path can be
// exercised without a GPU.
//
// Configuration:
//
//	MOCK_PORT          - Listen port (default: 9090)
//	MOCK_STARTUP_DELAY - Duration /health keeps returning 503, simulating
//	                     model load (default: 0)
//
// Prompt triggers:
//
//	"count from 1 to 5"  - counts instead of the default greeting
//	"trigger failure"    - mid-stream error payload followed by [DONE]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	readyAt := time.Now()
	if delay := os.Getenv("MOCK_STARTUP_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			slog.Error("invalid MOCK_STARTUP_DELAY", "value", delay, "error", err)
			os.Exit(1)
		}
		readyAt = readyAt.Add(d)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if time.Now().Before(readyAt) {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "ready_at", readyAt)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

const defaultReasoning = "The user greeted me, so a friendly greeting back is appropriate."

// --- Handler ---

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	if req.Stream {
		handleStreaming(w, &req)
		return
	}

	text := responseText(&req)
	resp := chatResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  modelName(&req),
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMsg{
					Role:             "assistant",
					Content:          text,
					ReasoningContent: defaultReasoning,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func responseText(req *chatRequest) string {
	lastMsg := strings.ToLower(getLastUserMessage(req))
	if strings.Contains(lastMsg, "count from 1 to 5") {
		return "1, 2, 3, 4, 5"
	}
	return "Hello, nice day!"
}

func modelName(req *chatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return "mock-model"
}

// --- Streaming ---

func handleStreaming(w http.ResponseWriter, req *chatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	model := modelName(req)
	lastMsg := strings.ToLower(getLastUserMessage(req))

	// Role chunk first, matching vLLM's framing.
	writeSSEChunk(w, model, delta{Role: "assistant"})
	flusher.Flush()

	// Reasoning arrives before any visible content.
	for _, token := range strings.SplitAfter(defaultReasoning, " ") {
		writeSSEChunk(w, model, delta{ReasoningContent: token})
		flusher.Flush()
	}

	if strings.Contains(lastMsg, "trigger failure") {
		errPayload := map[string]any{
			"error": map[string]any{
				"message": "engine aborted the request",
				"type":    "internal_error",
			},
		}
		data, _ := json.Marshal(errPayload)
		fmt.Fprintf(w, "data: %s\n\n", data)
		fmt.Fprintf(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}

	tokens := []string{"Hello", ", ", "nice", " ", "day", "!"}
	if strings.Contains(lastMsg, "count from 1 to 5") {
		tokens = []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}

	for _, token := range tokens {
		writeSSEChunk(w, model, delta{Content: token})
		flusher.Flush()
	}

	writeFinishChunk(w, model, len(tokens))
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

type delta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

func writeSSEChunk(w http.ResponseWriter, model string, d delta) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         d,
				"finish_reason": nil,
			},
		},
	}

	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeFinishChunk(w http.ResponseWriter, model string, tokenCount int) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         map[string]any{},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": tokenCount,
			"total_tokens":      10 + tokenCount,
		},
	}

	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// --- Models endpoint ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "schleuse-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func getLastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			if s, ok := req.Messages[i].Content.(string); ok {
				return s
			}
		}
	}
	return ""
}
