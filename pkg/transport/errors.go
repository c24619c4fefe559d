package transport

import (
	"encoding/json"
	"net/http"

	"github.com/akessl/schleuse/pkg/api"
)

// WriteError writes a JSON error response in the worker's terminal error
// shape, {"error":{"message":...}}, with the given HTTP status code. The
// same shape is used for in-band stream errors, so callers only ever parse
// one error format.
func WriteError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorBatch(err))
}
