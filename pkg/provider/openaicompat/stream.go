package openaicompat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/akessl/schleuse/pkg/provider"
)

// forwardWireLines reads the backend's SSE stream and yields each data line
// as a raw string batch in canonical "data: <payload>\n\n" framing. The
// payload bytes are not inspected here; the filter layer downstream owns
// sanitization. The [DONE] sentinel is forwarded and ends the stream.
//
// The channel is NOT closed by this function; the caller closes it.
func forwardWireLines(ctx context.Context, body io.Reader, ch chan<- provider.Event) {
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
		if payload == "" {
			continue
		}

		select {
		case ch <- provider.Event{Batch: "data: " + payload + "\n\n"}:
		case <-ctx.Done():
			return
		}

		if payload == "[DONE]" {
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

// wireError shapes a non-2xx backend response into an error.
func wireError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, msg)
}
