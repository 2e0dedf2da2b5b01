package session

import "github.com/golang-jwt/jwt/v5"

// AudienceSession is the audience of web session tokens
const AudienceSession = "authbridge:session"

// SessionClaims are the claims carried by a session cookie.
// Subject is the identity, ID the session id.
type SessionClaims struct {
	jwt.RegisteredClaims
	IssuedAtMs int64 `json:"iat_ms"` // Millisecond issuance, compared against revocation cutoffs
}
