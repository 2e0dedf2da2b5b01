package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/ports"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	DefaultCacheTTL   = 10 * time.Second
	DefaultCacheSize  = 4096
)

// cutoffEntry caches a revocation lookup, including "no cutoff" answers
type cutoffEntry struct {
	cutoff time.Time
	found  bool
}

// JWTProvider implements the SessionProvider interface with HS256-signed tokens
// and a per-identity revocation cutoff.
type JWTProvider struct {
	signKey    []byte
	sessionTTL time.Duration
	revoked    ports.RevocationStore
	cutoffs    *lru.LRU[core.Identity, cutoffEntry]
	now        func() time.Time
}

// Option configures a JWTProvider
type Option func(*JWTProvider)

// WithSessionTTL overrides the session lifetime
func WithSessionTTL(ttl time.Duration) Option {
	return func(p *JWTProvider) {
		if ttl > 0 {
			p.sessionTTL = ttl
		}
	}
}

// WithCutoffCache overrides the local revocation cache
func WithCutoffCache(size int, ttl time.Duration) Option {
	return func(p *JWTProvider) {
		p.cutoffs = lru.NewLRU[core.Identity, cutoffEntry](size, nil, ttl)
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(p *JWTProvider) {
		p.now = now
	}
}

// NewJWTProvider creates a new session provider
func NewJWTProvider(signKey []byte, revoked ports.RevocationStore, opts ...Option) *JWTProvider {
	p := &JWTProvider{
		signKey:    signKey,
		sessionTTL: DefaultSessionTTL,
		revoked:    revoked,
		cutoffs:    lru.NewLRU[core.Identity, cutoffEntry](DefaultCacheSize, nil, DefaultCacheTTL),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ports.SessionProvider = (*JWTProvider)(nil)

// SessionTTL returns the configured session lifetime
func (p *JWTProvider) SessionTTL() time.Duration {
	return p.sessionTTL
}

// Issue signs a new session token for identity
func (p *JWTProvider) Issue(ctx context.Context, identity core.Identity) (string, *core.WebSession, error) {
	if identity == "" {
		return "", nil, fmt.Errorf("identity is required")
	}

	now := time.UnixMilli(p.now().UnixMilli())
	sess := &core.WebSession{
		ID:        uuid.New().String(),
		Identity:  identity,
		IssuedAt:  now,
		ExpiresAt: now.Add(p.sessionTTL),
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			ID:        sess.ID,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		IssuedAtMs: now.UnixMilli(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, sess, nil
}

// Parse verifies the token signature, audience and expiry
func (p *JWTProvider) Parse(tokenStr string) (*core.WebSession, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.signKey, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithTimeFunc(p.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.IssuedAtMs == 0 || claims.ExpiresAt == nil {
		return nil, core.ErrInvalidToken
	}

	return &core.WebSession{
		ID:        claims.ID,
		Identity:  core.Identity(claims.Subject),
		IssuedAt:  time.UnixMilli(claims.IssuedAtMs),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate checks expiry and the identity's revocation cutoff
func (p *JWTProvider) Validate(ctx context.Context, sess *core.WebSession) (bool, error) {
	if sess == nil || sess.Identity == "" {
		return false, nil
	}
	if !p.now().Before(sess.ExpiresAt) {
		return false, nil
	}

	entry, ok := p.cutoffs.Get(sess.Identity)
	if !ok {
		cutoff, found, err := p.revoked.Cutoff(ctx, sess.Identity)
		if err != nil {
			return false, fmt.Errorf("failed to check session revocation: %w", err)
		}
		entry = cutoffEntry{cutoff: cutoff, found: found}
		p.cutoffs.Add(sess.Identity, entry)
	}

	if entry.found && !sess.IssuedAt.After(entry.cutoff) {
		return false, nil
	}
	return true, nil
}

// Terminate revokes every session of the identity issued up to now.
// Terminating an already terminated session is a no-op.
func (p *JWTProvider) Terminate(ctx context.Context, sess *core.WebSession) error {
	if sess == nil || sess.Identity == "" {
		return nil
	}

	cutoff := p.now()

	if err := p.revoked.RevokeBefore(ctx, sess.Identity, cutoff, p.sessionTTL); err != nil {
		return fmt.Errorf("failed to terminate session: %w", err)
	}

	p.cutoffs.Add(sess.Identity, cutoffEntry{cutoff: cutoff, found: true})
	return nil
}

// Forget drops the locally cached cutoff for identity so the next Validate
// consults the revocation store. Used when another instance reports a logout.
func (p *JWTProvider) Forget(identity core.Identity) {
	p.cutoffs.Remove(identity)
}
