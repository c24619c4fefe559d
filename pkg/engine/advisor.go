package engine

import (
	"log/slog"
	"sync/atomic"
)

// Advisor reports the worker's concurrency capacity to the host's admission
// control. It is polled on every scheduling decision, so Advise is lock-free
// against in-progress backend construction and never fails: before the Base
// handle is ready (or whenever its capacity cannot be read) the configured
// default applies.
type Advisor struct {
	init     *Initializer
	fallback atomic.Int64
}

// NewAdvisor creates an Advisor. A non-positive defaultMax is clamped to 1.
func NewAdvisor(init *Initializer, defaultMax int) *Advisor {
	a := &Advisor{init: init}
	if defaultMax <= 0 {
		defaultMax = 1
	}
	a.fallback.Store(int64(defaultMax))
	return a
}

// SetDefault updates the fallback capacity, e.g. from a config reload.
// Non-positive values are ignored.
func (a *Advisor) SetDefault(n int) {
	if n > 0 {
		a.fallback.Store(int64(n))
	}
}

// Advise returns the Base engine's capacity once it is ready and positive,
// otherwise the configured default. Any failure reading the engine value is
// logged and swallowed; this function must never panic or block.
func (a *Advisor) Advise() (n int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("capacity read failed, using default", "panic", r)
			n = int(a.fallback.Load())
		}
	}()

	if base := a.init.Base(); base != nil {
		if c := base.MaxConcurrency(); c > 0 {
			return c
		}
		slog.Debug("base engine reports no capacity, using default")
	}
	return int(a.fallback.Load())
}
