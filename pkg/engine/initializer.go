package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akessl/schleuse/pkg/observability"
	"github.com/akessl/schleuse/pkg/provider"
)

// BaseConstructor builds the Base backend handle. Expected to block for a
// long time (model loading, readiness waits).
type BaseConstructor func(ctx context.Context) (provider.Generator, error)

// CompatConstructor builds the Compat handle over an already constructed
// Base handle. Its own construction drives a complete generation through
// the base backend, so it is just as blocking.
type CompatConstructor func(ctx context.Context, base provider.Generator) (provider.Generator, error)

// handleBox wraps a Generator for atomic publication.
type handleBox struct {
	g provider.Generator
}

// Initializer performs lazy, once-only construction of the two backend
// handles. Many concurrent jobs may call EnsureReady; the mutex guarantees
// at most one construction attempt is in flight, and a failed attempt
// leaves the handle unset so a later job retries from scratch. Once a
// handle is ready it is never replaced for the life of the process.
//
// Handles are published atomically so that readers (the advisor, which the
// host polls on every scheduling decision) never contend with a
// construction that may hold the mutex for minutes.
type Initializer struct {
	mu        sync.Mutex
	base      atomic.Pointer[handleBox]
	compat    atomic.Pointer[handleBox]
	newBase   BaseConstructor
	newCompat CompatConstructor
}

// NewInitializer creates an Initializer with the given constructors.
// Nothing is built until the first EnsureReady call; eager construction at
// process start would block health checks and risk exceeding the
// platform's startup timeout.
func NewInitializer(newBase BaseConstructor, newCompat CompatConstructor) *Initializer {
	return &Initializer{
		newBase:   newBase,
		newCompat: newCompat,
	}
}

// EnsureReady makes sure both backend handles exist, building whichever is
// missing. Safe to call from many jobs concurrently; after the first global
// success it is a cheap no-op. On failure the error is returned to this
// caller only and the next call attempts construction again.
func (in *Initializer) EnsureReady(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.base.Load() == nil {
		slog.Info("initializing base engine (this may take a while)")
		g, err := construct(ctx, "base", func() (provider.Generator, error) {
			return in.newBase(ctx)
		})
		if err != nil {
			slog.Error("base engine initialization failed", "error", err)
			return fmt.Errorf("initializing base engine: %w", err)
		}
		in.base.Store(&handleBox{g: g})
		slog.Info("base engine initialized")
	}

	if in.compat.Load() == nil {
		base := in.base.Load().g
		slog.Info("initializing openai-compat engine (this may take a while)")
		g, err := construct(ctx, "compat", func() (provider.Generator, error) {
			return in.newCompat(ctx, base)
		})
		if err != nil {
			slog.Error("openai-compat engine initialization failed", "error", err)
			return fmt.Errorf("initializing openai-compat engine: %w", err)
		}
		in.compat.Store(&handleBox{g: g})
		slog.Info("openai-compat engine initialized")
	}

	return nil
}

// construct runs fn on a dedicated goroutine and waits for it to finish.
// Backend construction internally drives blocking sub-procedures that must
// not run inline on a goroutine multiplexing concurrent jobs; the caller
// parks here while other jobs keep making progress.
//
// The wait is unconditional: abandoning a construction midway would leak
// the resulting handle, so cancellation is honored inside the constructor
// (via the ctx it captured) rather than by walking away from it.
func construct(ctx context.Context, name string, fn func() (provider.Generator, error)) (provider.Generator, error) {
	type result struct {
		g   provider.Generator
		err error
	}

	start := time.Now()
	ch := make(chan result, 1)
	go func() {
		g, err := fn()
		ch <- result{g: g, err: err}
	}()

	r := <-ch
	observability.EngineInitDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if r.err != nil {
		observability.EngineInitAttempts.WithLabelValues(name, "error").Inc()
		return nil, r.err
	}
	observability.EngineInitAttempts.WithLabelValues(name, "ok").Inc()
	return r.g, nil
}

// Base returns the Base handle, or nil before it is ready. Never blocks.
func (in *Initializer) Base() provider.Generator {
	if box := in.base.Load(); box != nil {
		return box.g
	}
	return nil
}

// Compat returns the Compat handle, or nil before it is ready. Never blocks.
func (in *Initializer) Compat() provider.Generator {
	if box := in.compat.Load(); box != nil {
		return box.g
	}
	return nil
}

// Close releases both handles. Only called at process shutdown.
func (in *Initializer) Close() error {
	var firstErr error
	if c := in.Compat(); c != nil {
		if err := c.Close(); err != nil {
			firstErr = err
		}
	}
	if b := in.Base(); b != nil {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
