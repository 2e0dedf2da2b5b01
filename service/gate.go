package service

import (
	"net/url"
	"strings"

	"github.com/layer-3/authbridge/core"
)

// Action is what an access gate tells the router to do
type Action int

const (
	Allow Action = iota
	RedirectSignIn
	RedirectAcquire
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case RedirectSignIn:
		return "sign_in"
	case RedirectAcquire:
		return "acquire"
	default:
		return "unknown"
	}
}

// Decision is the result of a gate. Location is set for redirects.
type Decision struct {
	Action   Action
	Location string
}

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d.Action == Allow
}

// Gates holds the redirect targets of the route and content gates.
// Both gates are pure functions of the state and destination.
type Gates struct {
	signInPath    string
	acquirePath   string
	callbackParam string
}

// NewGates creates gates redirecting to signInPath and acquirePath
func NewGates(signInPath, acquirePath, callbackParam string) *Gates {
	if callbackParam == "" {
		callbackParam = "callbackUrl"
	}
	return &Gates{
		signInPath:    signInPath,
		acquirePath:   acquirePath,
		callbackParam: callbackParam,
	}
}

// RouteGate lets any request with a web session through
func (g *Gates) RouteGate(state core.SessionState, destination string) Decision {
	if !state.HasSession() {
		return Decision{Action: RedirectSignIn, Location: g.redirect(g.signInPath, destination)}
	}
	return Decision{Action: Allow}
}

// ContentGate lets only requests with usable backend credentials through
func (g *Gates) ContentGate(state core.SessionState, destination string) Decision {
	switch {
	case !state.HasSession():
		return Decision{Action: RedirectSignIn, Location: g.redirect(g.signInPath, destination)}
	case state.NeedsCredentials():
		return Decision{Action: RedirectAcquire, Location: g.redirect(g.acquirePath, destination)}
	default:
		return Decision{Action: Allow}
	}
}

func (g *Gates) redirect(base, destination string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + url.Values{g.callbackParam: {SafeCallback(destination)}}.Encode()
}

// SafeCallback keeps callback targets on this site. Anything that is not a
// local absolute path becomes "/".
func SafeCallback(destination string) string {
	if !strings.HasPrefix(destination, "/") || strings.HasPrefix(destination, "//") || strings.HasPrefix(destination, "/\\") {
		return "/"
	}
	return destination
}
