package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/akessl/schleuse/pkg/api"
	"github.com/akessl/schleuse/pkg/observability"
	"github.com/akessl/schleuse/pkg/storage"
	"github.com/akessl/schleuse/pkg/transport"
)

// Adapter serves the worker's host endpoints over HTTP.
// It routes requests, enforces admission against the capacity advisory,
// and bridges job output into SSE streams or the job store.
type Adapter struct {
	runner   transport.JobRunner
	store    transport.JobStore // nil disables async endpoints
	advisor  transport.CapacityAdvisor
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr        string
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		MaxBodySize: 10 << 20, // 10 MB
	}
}

// NewAdapter creates an HTTP adapter with the given JobRunner and options.
// The JobStore is optional; when nil, the async endpoints return an error
// indicating the operation is not available. Middleware is applied to the
// runner in the given order.
func NewAdapter(runner transport.JobRunner, store transport.JobStore, advisor transport.CapacityAdvisor, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		runner = transport.Chain(runner, middlewares...)
	}

	a := &Adapter{
		runner:   runner,
		store:    store,
		advisor:  advisor,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /run", a.handleRun)
	a.mux.HandleFunc("POST /runasync", a.handleRunAsync)
	a.mux.HandleFunc("GET /status/{id}", a.handleStatus)
	a.mux.HandleFunc("DELETE /jobs/{id}", a.handleCancel)
	a.mux.HandleFunc("GET /concurrency", a.handleConcurrency)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for X-Request-ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware propagates the X-Request-ID header. A
// client-supplied ID is carried into the context for the job middleware
// chain; otherwise one is generated here so every response carries an ID.
// The ID is known before the handler runs, so the response header is set
// up front rather than on first write.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)

		next.ServeHTTP(w, r)
	})
}

// InFlight reports the number of jobs currently running.
func (a *Adapter) InFlight() int {
	return a.inflight.Len()
}

// parseJobRequest decodes and validates the job envelope from the request
// body. A nil job with a true return means the error response was written.
func (a *Adapter) parseJobRequest(w http.ResponseWriter, r *http.Request) (*api.Job, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			transport.WriteError(w, http.StatusUnsupportedMediaType,
				errors.New("Content-Type must be application/json"))
			return nil, true
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	raw, err := readAll(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteError(w, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body too large (max %d bytes)", a.config.MaxBodySize))
			return nil, true
		}
		transport.WriteError(w, http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		return nil, true
	}

	job, err := api.ParseJob(raw)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err)
		return nil, true
	}
	return job, false
}

// admit registers the job against the advised capacity. The capacity check
// and the registration are one atomic step on the registry, so concurrent
// requests cannot be admitted past the limit. On rejection the error
// response is written; on success the caller owns the registry entry.
func (a *Adapter) admit(w http.ResponseWriter, id string, cancel context.CancelFunc) bool {
	limit := a.advisor.Advise()
	if !a.inflight.TryRegister(id, cancel, limit) {
		observability.AdmissionRejectedTotal.Inc()
		transport.WriteError(w, http.StatusTooManyRequests,
			fmt.Errorf("worker at capacity (%d concurrent jobs)", limit))
		return false
	}
	return true
}

// handleRun handles POST /run: the job's batches stream back to the
// caller as SSE frames on the same connection.
func (a *Adapter) handleRun(w http.ResponseWriter, r *http.Request) {
	job, done := a.parseJobRequest(w, r)
	if done {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if !a.admit(w, job.ID, cancel) {
		return
	}
	defer a.inflight.Remove(job.ID)

	sw := newSSEBatchWriter(w)
	if err := a.runner.RunJob(ctx, job, sw); err != nil {
		a.writeRunError(w, sw, err)
	}
}

// handleRunAsync handles POST /runasync: the job runs in the background
// and its output accumulates in the store for later retrieval.
func (a *Adapter) handleRunAsync(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteError(w, http.StatusNotImplemented,
			errors.New("async jobs are not available (no store configured)"))
		return
	}

	job, done := a.parseJobRequest(w, r)
	if done {
		return
	}

	// The job outlives the submitting request.
	ctx, cancel := context.WithCancel(context.Background())

	if !a.admit(w, job.ID, cancel) {
		cancel()
		return
	}

	rec := &transport.JobRecord{ID: job.ID, Status: transport.JobStatusInQueue}
	if err := a.store.CreateJob(r.Context(), rec); err != nil {
		a.inflight.Remove(job.ID)
		cancel()
		if errors.Is(err, storage.ErrConflict) {
			transport.WriteError(w, http.StatusConflict, fmt.Errorf("job %s already exists", job.ID))
			return
		}
		transport.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	go a.runAsyncJob(ctx, cancel, job)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"id":     job.ID,
		"status": transport.JobStatusInQueue,
	})
}

// runAsyncJob drives one background job to a terminal status.
func (a *Adapter) runAsyncJob(ctx context.Context, cancel context.CancelFunc, job *api.Job) {
	defer cancel()
	defer a.inflight.Remove(job.ID)

	// Status updates must land even when the job context was cancelled.
	storeCtx := context.WithoutCancel(ctx)

	if err := a.store.SetStatus(storeCtx, job.ID, transport.JobStatusInProgress, ""); err != nil {
		slog.Error("marking job in progress", "job_id", job.ID, "error", err)
	}

	sw := &storeBatchWriter{store: a.store, jobID: job.ID}
	err := a.runner.RunJob(ctx, job, sw)

	status := transport.JobStatusCompleted
	errMsg := ""
	switch {
	case ctx.Err() != nil:
		status = transport.JobStatusCancelled
	case err != nil:
		status = transport.JobStatusFailed
		errMsg = err.Error()
	case sw.failure != "":
		status = transport.JobStatusFailed
		errMsg = sw.failure
	}

	if err := a.store.SetStatus(storeCtx, job.ID, status, errMsg); err != nil {
		slog.Error("recording job status", "job_id", job.ID, "status", status, "error", err)
	}
}

// handleStatus handles GET /status/{id}.
func (a *Adapter) handleStatus(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteError(w, http.StatusNotImplemented,
			errors.New("job status is not available (no store configured)"))
		return
	}

	id := r.PathValue("id")
	rec, err := a.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteError(w, http.StatusNotFound, fmt.Errorf("job %s not found", id))
		} else {
			transport.WriteError(w, http.StatusInternalServerError, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleCancel handles DELETE /jobs/{id}. It first checks the in-flight
// registry (cancelling an active job), then falls through to the store
// for deleting a finished job's record.
func (a *Adapter) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if a.store == nil {
		transport.WriteError(w, http.StatusNotFound, fmt.Errorf("job %s not found", id))
		return
	}

	if err := a.store.DeleteJob(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteError(w, http.StatusNotFound, fmt.Errorf("job %s not found", id))
		} else {
			transport.WriteError(w, http.StatusInternalServerError, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleConcurrency handles GET /concurrency: the host polls this to size
// its scheduling decisions.
func (a *Adapter) handleConcurrency(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"concurrency": a.advisor.Advise(),
		"in_flight":   a.inflight.Len(),
	})
}

// handleHealth handles GET /healthz. The store is probed when configured;
// backend readiness is deliberately not part of liveness, since the
// engine initializes lazily on the first job.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.HealthCheck(r.Context()); err != nil {
			transport.WriteError(w, http.StatusServiceUnavailable, fmt.Errorf("store unhealthy: %w", err))
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// readAll drains the request body.
func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// writeRunError writes a synchronous run failure. If streaming has begun
// the error goes in-band as a terminal error batch; otherwise it becomes
// a plain JSON error response.
func (a *Adapter) writeRunError(w http.ResponseWriter, sw *sseBatchWriter, err error) {
	if sw.hasStartedStreaming() {
		if werr := sw.WriteBatch(context.Background(), api.ErrorBatch(err)); werr != nil {
			slog.Debug("writing terminal error batch", "error", werr)
		}
		return
	}
	transport.WriteError(w, http.StatusInternalServerError, err)
}
