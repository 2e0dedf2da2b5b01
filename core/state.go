package core

// SessionState combines web session presence with backend credential presence.
// It is computed per request and never stored.
type SessionState int

const (
	// Anonymous means there is no web session
	Anonymous SessionState = iota
	// SessionOnly means a web session exists but no credential record does
	SessionOnly
	// Authenticated means both exist and the access token was not rejected
	Authenticated
	// Refreshing is transient: a 401 was observed and a refresh is in flight
	Refreshing
	// Unrecoverable means the refresh attempt failed
	Unrecoverable
)

func (s SessionState) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case SessionOnly:
		return "session_only"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// HasSession reports whether the state implies a live web session
func (s SessionState) HasSession() bool {
	return s != Anonymous
}

// NeedsCredentials reports whether the visitor must run the credential
// acquisition flow before reaching protected content.
func (s SessionState) NeedsCredentials() bool {
	return s == SessionOnly || s == Unrecoverable
}
