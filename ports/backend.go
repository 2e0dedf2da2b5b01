package ports

import (
	"context"

	"github.com/layer-3/authbridge/core"
)

// RefreshClient exchanges a refresh token for a new token pair.
// Failures are reported as *core.RefreshError.
type RefreshClient interface {
	Refresh(ctx context.Context, refreshToken string) (*core.TokenPair, error)
}

// BackendAuthenticator mints a token pair for an identity
type BackendAuthenticator interface {
	Login(ctx context.Context, identity core.Identity, password string) (*core.TokenPair, error)
}
