package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/akessl/schleuse/pkg/api"
	"github.com/akessl/schleuse/pkg/observability"
	"github.com/akessl/schleuse/pkg/redact"
	"github.com/akessl/schleuse/pkg/transport"
)

// Handler runs one job end to end: ensure the backend handles exist, pick
// the routed backend, consume its generation stream, and forward every
// batch through the output filter to the sink.
//
// The hard invariant lives here: no unfiltered batch ever reaches the
// sink, and no raw backend fault ever reaches the caller. A failing
// stream is converted into exactly one terminal error-shaped batch.
type Handler struct {
	init *Initializer
}

// Ensure Handler implements transport.JobRunner at compile time.
var _ transport.JobRunner = (*Handler)(nil)

// NewHandler creates a Handler over the given initializer.
func NewHandler(init *Initializer) *Handler {
	return &Handler{init: init}
}

// RunJob implements transport.JobRunner.
func (h *Handler) RunJob(ctx context.Context, job *api.Job, w transport.BatchWriter) error {
	start := time.Now()
	route := "base"
	if job.OpenAIRoute {
		route = "openai"
	}

	// Lazy init: the first job pays for engine construction.
	if err := h.init.EnsureReady(ctx); err != nil {
		observability.JobsTotal.WithLabelValues(route, "init_error").Inc()
		return err
	}

	gen := h.init.Base()
	if job.OpenAIRoute {
		gen = h.init.Compat()
	}
	if gen == nil {
		// Should never happen after EnsureReady succeeded.
		observability.JobsTotal.WithLabelValues(route, "init_error").Inc()
		return fmt.Errorf("engine not available after initialization")
	}

	events, err := gen.Generate(ctx, job)
	if err != nil {
		return h.failJob(ctx, job, w, route, err)
	}

	for ev := range events {
		if ev.Err != nil {
			return h.failJob(ctx, job, w, route, ev.Err)
		}
		if err := w.WriteBatch(ctx, redact.FilterBatch(ev.Batch)); err != nil {
			// The caller is gone; stop consuming and let the backend tear
			// the stream down.
			observability.JobsTotal.WithLabelValues(route, "abandoned").Inc()
			return fmt.Errorf("writing batch for job %s: %w", job.ID, err)
		}
	}

	observability.JobsTotal.WithLabelValues(route, "ok").Inc()
	observability.JobDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	return nil
}

// failJob logs a generation failure and ends the stream cleanly with the
// one terminal error-shaped batch. The raw fault never crosses the sink.
func (h *Handler) failJob(ctx context.Context, job *api.Job, w transport.BatchWriter, route string, cause error) error {
	slog.Error("generation failed",
		"job_id", job.ID,
		"route", route,
		"error", cause,
	)
	observability.JobsTotal.WithLabelValues(route, "error").Inc()

	if err := w.WriteBatch(ctx, api.ErrorBatch(cause)); err != nil {
		return fmt.Errorf("writing error batch for job %s: %w", job.ID, err)
	}
	return nil
}
