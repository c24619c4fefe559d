package vllm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/akessl/schleuse/pkg/provider"
)

// parseChunkStream reads SSE chunks from the backend and sends each decoded
// payload as a batch event. The channel is NOT closed by this function; the
// caller is responsible for closing it.
//
// Malformed chunks are logged and skipped rather than failing the stream;
// a read error after the stream started surfaces as a terminal error event.
func parseChunkStream(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if payload == "[DONE]" {
			return
		}

		var chunk map[string]any
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed backend chunk",
				"error", err.Error(),
				"data", truncate(payload, 200),
			)
			continue
		}

		select {
		case ch <- provider.Event{Batch: chunk}:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		ch <- provider.Event{Err: fmt.Errorf("backend stream read error: %w", err)}
	}
}

// backendError shapes a non-2xx backend response into an error, including
// a bounded slice of the body for context.
func backendError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(msg, 200))
}

// truncate limits a string to maxLen characters for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
