// Package authbridge correlates a short-lived web session with the backend
// credential pair of the same identity. The concrete implementation lives in
// the service package; HTTP composition lives in transport/http.
package authbridge

import (
	"context"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/service"
)

// Bridge is the surface the rest of the application uses
type Bridge interface {
	// Fetch performs a backend call on behalf of identity, refreshing its
	// credentials at most once
	Fetch(ctx context.Context, identity core.Identity, target string, spec service.RequestSpec) (*service.Result, error)

	// ResolveSessionState combines session validity and credential presence
	ResolveSessionState(ctx context.Context, sess *core.WebSession) core.SessionState

	// RouteGate and ContentGate decide whether a request may proceed
	RouteGate(state core.SessionState, destination string) service.Decision
	ContentGate(state core.SessionState, destination string) service.Decision

	// SoftLogout clears backend credentials only
	SoftLogout(ctx context.Context, identity core.Identity) error

	// FullLogout clears backend credentials and terminates the web session
	FullLogout(ctx context.Context, sess *core.WebSession) error

	// ParseSession decodes a session token taken from a cookie
	ParseSession(token string) (*core.WebSession, error)

	// SignIn logs in against the backend and issues a web session
	SignIn(ctx context.Context, identity core.Identity, password string) (string, *core.WebSession, error)

	// Acquire mints backend credentials for an existing web session
	Acquire(ctx context.Context, sess *core.WebSession, password string) error
}

var _ Bridge = (*service.Bridge)(nil)
