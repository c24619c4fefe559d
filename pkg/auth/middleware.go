package auth

import (
	"log/slog"
	"net/http"
)

// unauthorizedBody is the error-shaped payload for rejected requests,
// matching the terminal error batch format of the job stream.
const unauthorizedBody = `{"error":{"message":"authentication required"}}`

// Middleware creates HTTP middleware from a Chain. Requests to bypass
// endpoints skip authentication entirely; everything else must produce a
// Yes vote with a non-empty subject.
func Middleware(chain *Chain, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision == No {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				writeUnauthorized(w)
				return
			}

			if result.Decision != Yes || result.Identity == nil {
				writeUnauthorized(w)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				http.Error(w, `{"error":{"message":"internal authentication error"}}`, http.StatusInternalServerError)
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"method", result.Identity.Method,
				"path", r.URL.Path,
			)

			ctx := SetIdentity(r.Context(), result.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(unauthorizedBody))
}

// DefaultBypassEndpoints lists endpoints that skip authentication. The
// health probe and metrics scrape come from the platform, not the caller.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}
