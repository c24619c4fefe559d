package api

// ErrorDetail carries the failure description surfaced to the caller.
type ErrorDetail struct {
	Message string `json:"message"`
}

// ErrorBatch builds the terminal error-shaped batch emitted when a
// generation stream fails:
//
//	{"error": {"message": "..."}}
//
// The shape is a protocol contract with the host's response aggregation
// and must stay stable.
func ErrorBatch(err error) map[string]any {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return map[string]any{
		"error": map[string]any{
			"message": msg,
		},
	}
}
