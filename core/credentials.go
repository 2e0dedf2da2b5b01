package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Identity is the opaque key (usually an e-mail) shared by the web session
// and the credential cache.
type Identity string

// Redacted returns a stable digest of the identity for log fields
func (i Identity) Redacted() string {
	if i == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(i))
	return "id:" + hex.EncodeToString(sum[:6])
}

// CredentialRecord holds the backend token pair cached for one identity.
type CredentialRecord struct {
	Access     string    `json:"access"`
	Refresh    string    `json:"refresh"`
	IssuedAt   time.Time `json:"issued_at"`
	TTLSeconds int64     `json:"ttl"`
}

// TTL returns the record lifetime
func (r *CredentialRecord) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// ExpiresAt returns when the cache entry lapses
func (r *CredentialRecord) ExpiresAt() time.Time {
	return r.IssuedAt.Add(r.TTL())
}

// Expired reports whether the record outlived its TTL at now.
// A record without TTL never expires on its own.
func (r *CredentialRecord) Expired(now time.Time) bool {
	if r.TTLSeconds <= 0 {
		return false
	}
	return !now.Before(r.ExpiresAt())
}

// HasRefresh reports whether a refresh can be attempted with this record
func (r *CredentialRecord) HasRefresh() bool {
	return r != nil && r.Refresh != ""
}

// TokenPair is the payload returned by the backend login and refresh endpoints
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Record converts the pair into a cache record issued at now that lives for ttl.
// The record outlives the access token (expires_in) so that a rejected access
// token can still be refreshed.
func (p *TokenPair) Record(now time.Time, ttl time.Duration) *CredentialRecord {
	return &CredentialRecord{
		Access:     p.AccessToken,
		Refresh:    p.RefreshToken,
		IssuedAt:   now,
		TTLSeconds: int64(ttl / time.Second),
	}
}

// WebSession is the short-lived web identity issued by the session provider
type WebSession struct {
	ID        string    // Unique session identifier
	Identity  Identity  // Who the session belongs to
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session lapses
}
