// Package noop provides a no-op authenticator that accepts all requests.
// Used for open deployments and as a default voter in the auth chain.
package noop

import (
	"context"
	"net/http"

	"github.com/akessl/schleuse/pkg/auth"
)

// Authenticator always returns Yes with an anonymous identity.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{Subject: "anonymous", Method: "anonymous"},
	}
}
