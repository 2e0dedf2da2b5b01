package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
	"github.com/layer-3/authbridge/ports"
)

// DefaultRefreshTimeout bounds a refresh shared by several callers
const DefaultRefreshTimeout = 30 * time.Second

var errNoRefreshToken = errors.New("record has no refresh token")

// Refresher exchanges a record's refresh token and stores the result.
//
// Concurrent refreshes for one identity are allowed by default: each caller
// gets its own token and the last write wins in the cache. With single flight
// enabled, callers presenting the same refresh token share one backend call.
type Refresher struct {
	client  ports.RefreshClient
	creds   *Credentials
	group   *singleflight.Group
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRefresher creates a refresher writing through creds
func NewRefresher(client ports.RefreshClient, creds *Credentials, singleFlight bool, m *metrics.Metrics, logger zerolog.Logger) *Refresher {
	if m == nil {
		m = metrics.New(nil)
	}
	r := &Refresher{
		client:  client,
		creds:   creds,
		timeout: DefaultRefreshTimeout,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	if singleFlight {
		r.group = &singleflight.Group{}
	}
	return r
}

// Refresh obtains a new record for identity from record's refresh token.
// On success the new record is written to the cache and returned.
// On failure nothing is written and a *core.RefreshError is returned.
func (r *Refresher) Refresh(ctx context.Context, identity core.Identity, record *core.CredentialRecord) (*core.CredentialRecord, error) {
	if !record.HasRefresh() {
		r.metrics.RefreshTotal.WithLabelValues("skipped").Inc()
		return nil, &core.RefreshError{Err: errNoRefreshToken}
	}

	if r.group == nil {
		return r.refresh(ctx, identity, record)
	}

	// The shared call must outlive any single caller, so it runs detached
	// from ctx under its own timeout while each caller waits on its own ctx.
	ch := r.group.DoChan(string(identity)+"\x00"+record.Refresh, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(sharedCtx, identity, record)
	})

	select {
	case <-ctx.Done():
		return nil, &core.RefreshError{Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			r.logger.Debug().Str("identity", identity.Redacted()).Msg("joined in-flight refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*core.CredentialRecord), nil
	}
}

func (r *Refresher) refresh(ctx context.Context, identity core.Identity, record *core.CredentialRecord) (*core.CredentialRecord, error) {
	pair, err := r.client.Refresh(ctx, record.Refresh)
	if err != nil {
		var refreshErr *core.RefreshError
		if !errors.As(err, &refreshErr) {
			refreshErr = &core.RefreshError{Err: err}
		}

		result := "error"
		if refreshErr.StatusCode != 0 {
			result = "rejected"
		}
		r.metrics.RefreshTotal.WithLabelValues(result).Inc()
		r.logger.Info().Err(refreshErr).Str("identity", identity.Redacted()).Msg("credential refresh failed")
		return nil, refreshErr
	}

	next := pair.Record(r.now(), r.creds.RecordTTL())
	if next.Refresh == "" {
		// Backend did not rotate the refresh token
		next.Refresh = record.Refresh
	}

	// The new token is usable for the retry even if the cache write fails
	if err := r.creds.Store(ctx, identity, next); err != nil {
		r.logger.Warn().Err(err).Str("identity", identity.Redacted()).Msg("failed to store refreshed credentials")
	}

	r.metrics.RefreshTotal.WithLabelValues("success").Inc()
	return next, nil
}
