package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
	"github.com/layer-3/authbridge/ports"
)

// Logout clears backend credentials and, for a full logout, the web session.
// Both variants are idempotent.
type Logout struct {
	creds    *Credentials
	sessions ports.SessionProvider
	events   ports.EventPublisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewLogout creates the logout service. A nil events publisher disables notifications.
func NewLogout(creds *Credentials, sessions ports.SessionProvider, events ports.EventPublisher, m *metrics.Metrics, logger zerolog.Logger) *Logout {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Logout{
		creds:    creds,
		sessions: sessions,
		events:   events,
		metrics:  m,
		logger:   logger,
	}
}

// SoftLogout deletes the credential record of identity and leaves the web session alone
func (l *Logout) SoftLogout(ctx context.Context, identity core.Identity) error {
	if err := l.creds.Remove(ctx, identity); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	l.metrics.LogoutsTotal.WithLabelValues("soft").Inc()
	return nil
}

// FullLogout clears credentials and terminates the web session.
// The session is terminated even when the credential cache is unreachable.
func (l *Logout) FullLogout(ctx context.Context, sess *core.WebSession) error {
	if sess == nil {
		return nil
	}

	var errs []error
	if err := l.creds.Remove(ctx, sess.Identity); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear credentials: %w", err))
	}

	if err := l.sessions.Terminate(ctx, sess); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate session: %w", err))
		return errors.Join(errs...)
	}

	if l.events != nil {
		if err := l.events.PublishLogout(ctx, sess.Identity, sess.ID); err != nil {
			// The session is already revoked in the shared store
			l.logger.Warn().Err(err).Str("identity", sess.Identity.Redacted()).Msg("failed to publish logout event")
		}
	}

	l.metrics.LogoutsTotal.WithLabelValues("full").Inc()
	return errors.Join(errs...)
}
