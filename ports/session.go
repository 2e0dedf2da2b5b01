package ports

import (
	"context"

	"github.com/layer-3/authbridge/core"
)

// SessionProvider issues and validates web sessions
type SessionProvider interface {
	// Issue creates a new session for identity and returns its token
	Issue(ctx context.Context, identity core.Identity) (string, *core.WebSession, error)

	// Parse decodes a session token without checking revocation
	Parse(token string) (*core.WebSession, error)

	// Validate reports whether the session is still live
	Validate(ctx context.Context, session *core.WebSession) (bool, error)

	// Terminate ends every session of the identity issued up to now
	Terminate(ctx context.Context, session *core.WebSession) error
}
