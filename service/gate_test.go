package service

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/authbridge/core"
)

func TestGates(t *testing.T) {
	gates := NewGates("/auth/signin", "/auth/credentials", "callbackUrl")

	tests := []struct {
		state   core.SessionState
		route   Action
		content Action
	}{
		{core.Anonymous, RedirectSignIn, RedirectSignIn},
		{core.SessionOnly, Allow, RedirectAcquire},
		{core.Authenticated, Allow, Allow},
		{core.Refreshing, Allow, Allow},
		{core.Unrecoverable, Allow, RedirectAcquire},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			route := gates.RouteGate(tt.state, "/account?tab=orders")
			assert.Equal(t, tt.route, route.Action)
			assert.Equal(t, tt.route == Allow, route.Allowed())

			content := gates.ContentGate(tt.state, "/account?tab=orders")
			assert.Equal(t, tt.content, content.Action)
			if content.Allowed() {
				assert.Empty(t, content.Location)
			}
		})
	}
}

func TestGates_PreserveDestination(t *testing.T) {
	gates := NewGates("/auth/signin", "/auth/credentials?flow=backend", "callbackUrl")

	d := gates.RouteGate(core.Anonymous, "/account?tab=orders")
	u, err := url.Parse(d.Location)
	require.NoError(t, err)
	assert.Equal(t, "/auth/signin", u.Path)
	assert.Equal(t, "/account?tab=orders", u.Query().Get("callbackUrl"))

	d = gates.ContentGate(core.Unrecoverable, "/account")
	u, err = url.Parse(d.Location)
	require.NoError(t, err)
	assert.Equal(t, "/auth/credentials", u.Path)
	assert.Equal(t, "backend", u.Query().Get("flow"))
	assert.Equal(t, "/account", u.Query().Get("callbackUrl"))
}

func TestSafeCallback(t *testing.T) {
	assert.Equal(t, "/orders?x=1", SafeCallback("/orders?x=1"))
	assert.Equal(t, "/", SafeCallback("https://evil.example.com"))
	assert.Equal(t, "/", SafeCallback("//evil.example.com"))
	assert.Equal(t, "/", SafeCallback(`/\evil.example.com`))
	assert.Equal(t, "/", SafeCallback(""))
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "sign_in", RedirectSignIn.String())
	assert.Equal(t, "acquire", RedirectAcquire.String())
	assert.Equal(t, "unknown", Action(42).String())
}
