package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTokenExpired       = errors.New("token has expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionRevoked     = errors.New("session has been revoked")
	ErrNoSession          = errors.New("no web session")
	ErrUnauthenticated    = errors.New("no backend credentials for identity")
	ErrCacheUnavailable   = errors.New("credential cache unavailable")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TransportError reports that the backend or the cache could not be reached.
// It is distinct from an authorization failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthorizationError reports that the backend rejected the access token
type AuthorizationError struct {
	StatusCode int
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("backend rejected access token (status %d)", e.StatusCode)
}

// RefreshError reports that the refresh token was rejected or the refresh
// endpoint was unreachable. It is terminal for the current request.
type RefreshError struct {
	StatusCode int   // Backend status, zero when the call never completed
	Err        error // Underlying cause, if any
}

func (e *RefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("refresh rejected (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// IsAuthorizationStatus reports whether an HTTP status means the access token was rejected
func IsAuthorizationStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
