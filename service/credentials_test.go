package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
)

// stallingCache never answers until the context gives up
type stallingCache struct{}

func (stallingCache) Get(ctx context.Context, _ core.Identity) (*core.CredentialRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingCache) Set(ctx context.Context, _ core.Identity, _ *core.CredentialRecord, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallingCache) Delete(ctx context.Context, _ core.Identity) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCredentials_LookupTimesOutAsAbsent(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	creds := NewCredentials(stallingCache{}, 20*time.Millisecond, time.Hour, m, zerolog.Nop())

	start := time.Now()
	assert.Nil(t, creds.Lookup(context.Background(), "u1"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("unavailable")))

	err := creds.Store(context.Background(), "u1", &core.CredentialRecord{Access: "a"})
	assert.ErrorIs(t, err, core.ErrCacheUnavailable)

	err = creds.Remove(context.Background(), "u1")
	assert.ErrorIs(t, err, core.ErrCacheUnavailable)
}

func TestCredentials_UnavailableCacheFailsFastForRequiredCalls(t *testing.T) {
	f := newFixture(t)
	creds := NewCredentials(stallingCache{}, 20*time.Millisecond, time.Hour, f.metrics, zerolog.Nop())
	refresher := NewRefresher(refreshFunc(func(context.Context, string) (*core.TokenPair, error) {
		return nil, errors.New("unexpected refresh")
	}), creds, false, f.metrics, zerolog.Nop())
	proxy, err := NewProxy(f.backend.srv.URL, nil, creds, refresher, f.metrics, zerolog.Nop())
	require.NoError(t, err)

	_, err = proxy.Fetch(context.Background(), "u1", "/orders", RequestSpec{Auth: AuthRequired})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Empty(t, f.backend.requestsTo("/orders"))
}

func TestCredentials_HitMissAndStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Nil(t, f.creds.Lookup(ctx, "u1"))
	assert.Nil(t, f.creds.Lookup(ctx, ""))

	require.NoError(t, f.creds.Store(ctx, "u1", &core.CredentialRecord{Access: "a", Refresh: "r", IssuedAt: time.Now()}))
	rec := f.creds.Lookup(ctx, "u1")
	require.NotNil(t, rec)
	assert.Equal(t, "a", rec.Access)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheLookupsTotal.WithLabelValues("hit")))

	assert.Error(t, f.creds.Store(ctx, "", &core.CredentialRecord{Access: "a"}))
	assert.Error(t, f.creds.Store(ctx, "u1", &core.CredentialRecord{}))

	require.NoError(t, f.creds.Remove(ctx, "u1"))
	require.NoError(t, f.creds.Remove(ctx, "u1"))
	assert.Nil(t, f.creds.Lookup(ctx, "u1"))
}
