package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
	"github.com/layer-3/authbridge/ports"
)

const (
	DefaultLookupTimeout = 5 * time.Second
	DefaultRecordTTL     = 30 * 24 * time.Hour
)

// Credentials bounds every credential cache call with a timeout.
// Lookup failures are absorbed and reported as absent.
type Credentials struct {
	cache     ports.CredentialCache
	timeout   time.Duration
	recordTTL time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewCredentials wraps cache. Non-positive durations fall back to the defaults.
func NewCredentials(cache ports.CredentialCache, timeout, recordTTL time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Credentials {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if recordTTL <= 0 {
		recordTTL = DefaultRecordTTL
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Credentials{
		cache:     cache,
		timeout:   timeout,
		recordTTL: recordTTL,
		metrics:   m,
		logger:    logger,
	}
}

// RecordTTL is the lifetime given to newly minted records
func (c *Credentials) RecordTTL() time.Duration {
	return c.recordTTL
}

// Lookup returns the record for identity, or nil when it is absent or the
// cache could not answer in time.
func (c *Credentials) Lookup(ctx context.Context, identity core.Identity) *core.CredentialRecord {
	if identity == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	record, err := c.cache.Get(ctx, identity)
	if err != nil {
		c.metrics.CacheLookupsTotal.WithLabelValues("unavailable").Inc()
		c.logger.Warn().
			Err(fmt.Errorf("%w: %v", core.ErrCacheUnavailable, err)).
			Str("identity", identity.Redacted()).
			Msg("credential lookup failed, treating as absent")
		return nil
	}

	if record == nil {
		c.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}

	c.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return record
}

// Store writes record for identity with the record's own TTL
func (c *Credentials) Store(ctx context.Context, identity core.Identity, record *core.CredentialRecord) error {
	if identity == "" {
		return errors.New("identity is required")
	}
	if record == nil || record.Access == "" {
		return errors.New("record without access token")
	}

	ttl := record.TTL()
	if ttl <= 0 {
		ttl = c.recordTTL
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.cache.Set(ctx, identity, record, ttl); err != nil {
		return fmt.Errorf("%w: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}

// Remove deletes the record for identity. Removing an absent record succeeds.
func (c *Credentials) Remove(ctx context.Context, identity core.Identity) error {
	if identity == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.cache.Delete(ctx, identity); err != nil {
		return fmt.Errorf("%w: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}
