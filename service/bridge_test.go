package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/authbridge/adapters/backend"
	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
)

func newTestBridge(t *testing.T, f *fixture) *Bridge {
	t.Helper()
	client := backend.NewClient(f.backend.srv.URL, f.backend.srv.Client())
	b, err := NewBridge(Deps{
		Cache:         f.cache,
		Sessions:      f.sessions,
		Refresh:       client,
		Authenticator: client,
		HTTPClient:    f.backend.srv.Client(),
		Metrics:       metrics.New(prometheus.NewRegistry()),
		Logger:        zerolog.Nop(),
	}, Options{
		BackendURL:    f.backend.srv.URL,
		SignInPath:    "/auth/signin",
		AcquirePath:   "/auth/credentials",
		CallbackParam: "callbackUrl",
	})
	require.NoError(t, err)
	return b
}

func TestBridge_SignInAndFetch(t *testing.T) {
	f := newFixture(t)
	b := newTestBridge(t, f)
	ctx := context.Background()

	token, sess, err := b.SignIn(ctx, "u1@example.com", "secret")
	require.NoError(t, err)

	parsed, err := b.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, parsed.ID)
	assert.Equal(t, core.Authenticated, b.ResolveSessionState(ctx, parsed))

	res, err := b.Fetch(ctx, parsed.Identity, "/users/me", RequestSpec{Auth: AuthRequired})
	require.NoError(t, err)
	defer res.Response.Body.Close()
	assert.Equal(t, http.StatusOK, res.Response.StatusCode)

	rec := f.cached(t, "u1@example.com")
	require.NotNil(t, rec)
	assert.Equal(t, "login-refresh", rec.Refresh)
	assert.Equal(t, int64(DefaultRecordTTL.Seconds()), rec.TTLSeconds)
}

func TestBridge_SignInRejected(t *testing.T) {
	f := newFixture(t)
	b := newTestBridge(t, f)

	_, _, err := b.SignIn(context.Background(), "u1@example.com", "wrong")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	_, _, err = b.SignIn(context.Background(), "u1@example.com", "")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	assert.Nil(t, f.cached(t, "u1@example.com"))
}

func TestBridge_AcquireAfterSoftLogout(t *testing.T) {
	f := newFixture(t)
	b := newTestBridge(t, f)
	ctx := context.Background()

	_, sess, err := b.SignIn(ctx, "u1@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, b.SoftLogout(ctx, sess.Identity))
	assert.Equal(t, core.SessionOnly, b.ResolveSessionState(ctx, sess))
	assert.Equal(t, RedirectAcquire, b.ContentGate(core.SessionOnly, "/account").Action)
	assert.True(t, b.RouteGate(core.SessionOnly, "/account").Allowed())

	assert.ErrorIs(t, b.Acquire(ctx, sess, "wrong"), core.ErrInvalidCredentials)
	require.NoError(t, b.Acquire(ctx, sess, "secret"))
	assert.Equal(t, core.Authenticated, b.ResolveSessionState(ctx, sess))
}

func TestBridge_AcquireNeedsLiveSession(t *testing.T) {
	f := newFixture(t)
	b := newTestBridge(t, f)
	ctx := context.Background()

	assert.ErrorIs(t, b.Acquire(ctx, nil, "secret"), core.ErrNoSession)

	_, sess, err := b.SignIn(ctx, "u1@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, b.FullLogout(ctx, sess))

	assert.Equal(t, core.Anonymous, b.ResolveSessionState(ctx, sess))
	assert.ErrorIs(t, b.Acquire(ctx, sess, "secret"), core.ErrSessionRevoked)
}

func TestNewBridge_RequiresCollaborators(t *testing.T) {
	_, err := NewBridge(Deps{}, Options{})
	assert.Error(t, err)
}
