package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/ports"
)

// Resolver combines session validity and credential presence into a SessionState
type Resolver struct {
	sessions ports.SessionProvider
	creds    *Credentials
	logger   zerolog.Logger
}

// NewResolver creates a resolver
func NewResolver(sessions ports.SessionProvider, creds *Credentials, logger zerolog.Logger) *Resolver {
	return &Resolver{sessions: sessions, creds: creds, logger: logger}
}

// Resolve never fails. A session that cannot be validated counts as absent.
func (r *Resolver) Resolve(ctx context.Context, sess *core.WebSession) core.SessionState {
	if sess == nil {
		return core.Anonymous
	}

	valid, err := r.sessions.Validate(ctx, sess)
	if err != nil {
		r.logger.Warn().Err(err).Str("identity", sess.Identity.Redacted()).Msg("session validation failed")
		return core.Anonymous
	}
	if !valid {
		return core.Anonymous
	}

	if r.creds.Lookup(ctx, sess.Identity) == nil {
		return core.SessionOnly
	}
	return core.Authenticated
}
