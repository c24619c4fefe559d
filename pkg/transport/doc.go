// Package transport defines the host-facing contracts of the worker: the
// job entry point, the batch sink a handler writes to, handler middleware,
// and the registry of in-flight jobs. The HTTP/SSE adapter lives in the
// http subpackage.
package transport
