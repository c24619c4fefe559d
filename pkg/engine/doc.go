// Package engine coordinates request-time concerns of the worker: lazy
// once-only construction of the backend handles, the capacity advisory
// consumed by the host's admission control, and the per-job handler that
// streams filtered batches to the transport sink.
package engine
