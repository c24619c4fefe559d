// Package api defines the job and batch types shared between the transport
// layer, the engine, and the backend adapters. A Batch is deliberately
// untyped (any): the host platform may deliver a single structured payload,
// a single raw SSE line, or a sequence mixing both, and the filter layer
// dispatches on the concrete shape.
package api
