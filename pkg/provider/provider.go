package provider

import (
	"context"

	"github.com/akessl/schleuse/pkg/api"
)

// Generator abstracts an initialized generation backend handle.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Construction is expected to be expensive (model loading, warmup); a handle
// is built once and never replaced for the life of the process.
type Generator interface {
	// Name returns the backend identifier (e.g., "vllm", "openai-compat").
	Name() string

	// MaxConcurrency reports how many jobs the backend can serve at once.
	// A non-positive value means the backend does not know.
	MaxConcurrency() int

	// Generate starts a generation for the given job. The returned channel
	// yields Event values and is closed by the backend when the stream
	// completes or fails. An Event with a non-nil Err is terminal.
	Generate(ctx context.Context, job *api.Job) (<-chan Event, error)

	// Close releases backend resources (HTTP clients, connections).
	Close() error
}

// Event is a single unit produced by a generation stream: either a batch
// or a terminal error.
type Event struct {
	// Batch is the produced batch: a structured payload (map), a raw SSE
	// line (string), or a sequence of either. Nil when Err is set.
	Batch any

	// Err terminates the stream when non-nil. The channel is closed after
	// an error event.
	Err error
}
