package transport

import (
	"context"

	"github.com/akessl/schleuse/pkg/api"
)

// JobRunner is the streaming, batch-yielding entry point the worker
// registers with the host. The implementation consumes the generation
// stream for the job and writes every (already filtered) batch to w.
//
// A non-nil return value signals that no usable stream could be started at
// all (e.g. backend initialization failed); once batches are flowing,
// failures are surfaced in-band as a terminal error-shaped batch instead.
type JobRunner interface {
	RunJob(ctx context.Context, job *api.Job, w BatchWriter) error
}

// JobRunnerFunc is an adapter that allows using an ordinary function as a
// JobRunner.
type JobRunnerFunc func(ctx context.Context, job *api.Job, w BatchWriter) error

// RunJob calls f(ctx, job, w).
func (f JobRunnerFunc) RunJob(ctx context.Context, job *api.Job, w BatchWriter) error {
	return f(ctx, job, w)
}

// BatchWriter is the sink a job handler forwards batches to. The transport
// layer creates one per job: an SSE writer for synchronous streaming, a
// collecting writer for async jobs whose aggregated result is stored.
type BatchWriter interface {
	// WriteBatch forwards one batch toward the caller. Returns an error if
	// the caller is gone or the sink is closed.
	WriteBatch(ctx context.Context, batch any) error
}

// CapacityAdvisor reports how many concurrent jobs the worker can serve.
// The host polls it on every scheduling decision, so implementations must
// be cheap and must never block or panic.
type CapacityAdvisor interface {
	Advise() int
}
