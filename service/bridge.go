package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
	"github.com/layer-3/authbridge/ports"
)

// Deps are the collaborators of the bridge
type Deps struct {
	Cache         ports.CredentialCache
	Sessions      ports.SessionProvider
	Refresh       ports.RefreshClient
	Authenticator ports.BackendAuthenticator
	Events        ports.EventPublisher
	HTTPClient    *http.Client
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// Options tune the bridge
type Options struct {
	BackendURL    string
	LookupTimeout time.Duration
	RecordTTL     time.Duration
	SingleFlight  bool
	SignInPath    string
	AcquirePath   string
	CallbackParam string
}

// Bridge ties the web session to backend credentials
type Bridge struct {
	creds    *Credentials
	proxy    *Proxy
	resolver *Resolver
	gates    *Gates
	logout   *Logout
	sessions ports.SessionProvider
	auth     ports.BackendAuthenticator
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBridge wires the bridge services together
func NewBridge(deps Deps, opts Options) (*Bridge, error) {
	if deps.Cache == nil || deps.Sessions == nil || deps.Refresh == nil {
		return nil, errors.New("cache, session provider and refresh client are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}

	creds := NewCredentials(deps.Cache, opts.LookupTimeout, opts.RecordTTL, deps.Metrics, deps.Logger)
	refresher := NewRefresher(deps.Refresh, creds, opts.SingleFlight, deps.Metrics, deps.Logger)

	proxy, err := NewProxy(opts.BackendURL, deps.HTTPClient, creds, refresher, deps.Metrics, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &Bridge{
		creds:    creds,
		proxy:    proxy,
		resolver: NewResolver(deps.Sessions, creds, deps.Logger),
		gates:    NewGates(opts.SignInPath, opts.AcquirePath, opts.CallbackParam),
		logout:   NewLogout(creds, deps.Sessions, deps.Events, deps.Metrics, deps.Logger),
		sessions: deps.Sessions,
		auth:     deps.Authenticator,
		logger:   deps.Logger,
		now:      time.Now,
	}, nil
}

// Fetch performs an authenticated backend call for identity
func (b *Bridge) Fetch(ctx context.Context, identity core.Identity, target string, spec RequestSpec) (*Result, error) {
	return b.proxy.Fetch(ctx, identity, target, spec)
}

// ResolveSessionState computes the state of sess
func (b *Bridge) ResolveSessionState(ctx context.Context, sess *core.WebSession) core.SessionState {
	return b.resolver.Resolve(ctx, sess)
}

// RouteGate applies the outer gate
func (b *Bridge) RouteGate(state core.SessionState, destination string) Decision {
	return b.gates.RouteGate(state, destination)
}

// ContentGate applies the inner gate
func (b *Bridge) ContentGate(state core.SessionState, destination string) Decision {
	return b.gates.ContentGate(state, destination)
}

// SoftLogout clears the backend credentials of identity
func (b *Bridge) SoftLogout(ctx context.Context, identity core.Identity) error {
	return b.logout.SoftLogout(ctx, identity)
}

// FullLogout clears credentials and ends the web session
func (b *Bridge) FullLogout(ctx context.Context, sess *core.WebSession) error {
	return b.logout.FullLogout(ctx, sess)
}

// ParseSession decodes a session cookie value
func (b *Bridge) ParseSession(token string) (*core.WebSession, error) {
	return b.sessions.Parse(token)
}

// SignIn logs identity in against the backend, caches its credentials and
// issues a new web session.
func (b *Bridge) SignIn(ctx context.Context, identity core.Identity, password string) (string, *core.WebSession, error) {
	if err := b.login(ctx, identity, password); err != nil {
		return "", nil, err
	}

	token, sess, err := b.sessions.Issue(ctx, identity)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue session: %w", err)
	}

	b.logger.Info().Str("identity", identity.Redacted()).Str("session_id", sess.ID).Msg("signed in")
	return token, sess, nil
}

// Acquire mints backend credentials for an existing web session
func (b *Bridge) Acquire(ctx context.Context, sess *core.WebSession, password string) error {
	if sess == nil {
		return core.ErrNoSession
	}

	valid, err := b.sessions.Validate(ctx, sess)
	if err != nil {
		return fmt.Errorf("failed to validate session: %w", err)
	}
	if !valid {
		return core.ErrSessionRevoked
	}

	if err := b.login(ctx, sess.Identity, password); err != nil {
		return err
	}

	b.logger.Info().Str("identity", sess.Identity.Redacted()).Msg("backend credentials acquired")
	return nil
}

func (b *Bridge) login(ctx context.Context, identity core.Identity, password string) error {
	if b.auth == nil {
		return errors.New("backend authenticator not configured")
	}
	if identity == "" || password == "" {
		return core.ErrInvalidCredentials
	}

	pair, err := b.auth.Login(ctx, identity, password)
	if err != nil {
		return fmt.Errorf("backend login failed: %w", err)
	}

	if err := b.creds.Store(ctx, identity, pair.Record(b.now(), b.creds.RecordTTL())); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}
