// Package provider defines the interface for generation backends. Each
// adapter handles its own backend protocol internally and exposes a lazy
// stream of batches; what a batch contains (a structured payload or a raw
// SSE line) is the adapter's choice, and the filter layer downstream
// dispatches on the concrete shape.
package provider
