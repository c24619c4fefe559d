package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/akessl/schleuse/pkg/storage/memory"
	"github.com/akessl/schleuse/pkg/transport"
)

func TestFrameBatch(t *testing.T) {
	tests := []struct {
		name  string
		batch any
		want  string
	}{
		{
			name:  "pre-framed string passes through",
			batch: "data: {\"id\":\"c1\"}\n\n",
			want:  "data: {\"id\":\"c1\"}\n\n",
		},
		{
			name:  "string without blank line gets one",
			batch: "data: [DONE]",
			want:  "data: [DONE]\n\n",
		},
		{
			name:  "map becomes a data frame",
			batch: map[string]any{"id": "c1"},
			want:  "data: {\"id\":\"c1\"}\n\n",
		},
		{
			name:  "no html escaping of model output",
			batch: map[string]any{"text": "<think>/&"},
			want:  "data: {\"text\":\"<think>/&\"}\n\n",
		},
		{
			name:  "array batch is one frame",
			batch: []any{map[string]any{"a": float64(1)}},
			want:  "data: [{\"a\":1}]\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := frameBatch(tt.batch)
			if err != nil {
				t.Fatalf("frameBatch() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("frameBatch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSSEBatchWriterHeadersAndFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newSSEBatchWriter(rec)

	if sw.hasStartedStreaming() {
		t.Fatal("writer should not report streaming before first write")
	}

	if err := sw.WriteBatch(context.Background(), map[string]any{"n": float64(1)}); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if err := sw.WriteBatch(context.Background(), "data: [DONE]\n\n"); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	if !sw.hasStartedStreaming() {
		t.Error("writer should report streaming after first write")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "data: {\"n\":1}\n\n") {
		t.Errorf("body missing first frame: %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("body missing sentinel frame: %q", body)
	}
}

func TestSSEBatchWriterCancelledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newSSEBatchWriter(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sw.WriteBatch(ctx, "data: x\n\n"); err == nil {
		t.Error("WriteBatch() with cancelled context should fail")
	}
	if rec.Body.Len() != 0 {
		t.Error("nothing should be written after cancellation")
	}
}

func TestStoreBatchWriterAppendsAndTracksFailure(t *testing.T) {
	store := memory.New(0)
	ctx := context.Background()
	store.CreateJob(ctx, &transport.JobRecord{ID: "job_sw"})

	sw := &storeBatchWriter{store: store, jobID: "job_sw"}

	if err := sw.WriteBatch(ctx, map[string]any{"choices": []any{}}); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if sw.failure != "" {
		t.Errorf("ordinary batch marked as failure: %q", sw.failure)
	}

	errBatch := map[string]any{"error": map[string]any{"message": "engine died"}}
	if err := sw.WriteBatch(ctx, errBatch); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if sw.failure != "engine died" {
		t.Errorf("failure = %q, want %q", sw.failure, "engine died")
	}

	rec, err := store.GetJob(ctx, "job_sw")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if len(rec.Batches) != 2 {
		t.Errorf("len(Batches) = %d, want 2 (error batch is stored too)", len(rec.Batches))
	}
}

func TestErrorBatchMessage(t *testing.T) {
	tests := []struct {
		name  string
		batch any
		want  string
	}{
		{"error batch", map[string]any{"error": map[string]any{"message": "boom"}}, "boom"},
		{"plain map", map[string]any{"choices": []any{}}, ""},
		{"error without message", map[string]any{"error": map[string]any{}}, ""},
		{"error not an object", map[string]any{"error": "boom"}, ""},
		{"string batch", "data: x\n\n", ""},
		{"nil batch", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorBatchMessage(tt.batch); got != tt.want {
				t.Errorf("errorBatchMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
