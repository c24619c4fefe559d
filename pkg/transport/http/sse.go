package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/akessl/schleuse/pkg/transport"
)

// sseBatchWriter implements transport.BatchWriter for synchronous
// streaming requests. Each batch becomes one SSE frame on the wire.
//
// String batches are assumed to be pre-framed SSE lines (the OpenAI route
// yields those) and are written verbatim after normalization; all other
// batch shapes are serialized as a single data frame.
type sseBatchWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	started bool
}

var _ transport.BatchWriter = (*sseBatchWriter)(nil)

func newSSEBatchWriter(w http.ResponseWriter) *sseBatchWriter {
	return &sseBatchWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteBatch sends one batch as an SSE frame and flushes it.
func (s *sseBatchWriter) WriteBatch(ctx context.Context, batch any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
	}

	frame, err := frameBatch(batch)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing batch: %w", err)
	}
	return nil
}

// hasStartedStreaming reports whether at least one frame has been written.
func (s *sseBatchWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// frameBatch renders a batch as one SSE frame ending in a blank line.
// Pre-framed string batches pass through with their framing normalized;
// everything else is JSON-encoded without HTML escaping so model output
// arrives byte-for-byte intact.
func frameBatch(batch any) ([]byte, error) {
	if line, ok := batch.(string); ok {
		if !bytes.HasSuffix([]byte(line), []byte("\n\n")) {
			line += "\n\n"
		}
		return []byte(line), nil
	}

	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(batch); err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}
	// Encode appends one newline; the frame needs a blank line after it.
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// storeBatchWriter implements transport.BatchWriter for async jobs by
// appending every batch to the job's stored record. It remembers the
// message of a terminal error batch so the job can be marked failed;
// generation failures arrive in-band rather than as a handler error.
type storeBatchWriter struct {
	store transport.JobStore
	jobID string

	failure string
}

var _ transport.BatchWriter = (*storeBatchWriter)(nil)

// WriteBatch appends the batch to the stored job.
func (s *storeBatchWriter) WriteBatch(ctx context.Context, batch any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg := errorBatchMessage(batch); msg != "" {
		s.failure = msg
	}
	return s.store.AppendBatch(ctx, s.jobID, batch)
}

// errorBatchMessage extracts the message from a terminal error batch,
// {"error":{"message":...}}, or returns "" for ordinary batches.
func errorBatchMessage(batch any) string {
	m, ok := batch.(map[string]any)
	if !ok {
		return ""
	}
	e, ok := m["error"].(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := e["message"].(string)
	return msg
}
