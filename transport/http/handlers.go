package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge"
	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/service"
)

const maxRelayBody = 10 << 20

// Request headers forwarded to the backend
var forwardedHeaders = []string{"Accept", "Accept-Language", "Content-Type", "If-None-Match", "If-Modified-Since"}

// Response headers never copied back to the client
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Set-Cookie":          true,
}

// Handlers contains the HTTP handlers of the bridge
type Handlers struct {
	bridge       authbridge.Bridge
	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration
}

// NewHandlers creates new handlers
func NewHandlers(bridge authbridge.Bridge, cfg Config) *Handlers {
	return &Handlers{
		bridge:       bridge,
		cookieName:   cfg.CookieName,
		cookieSecure: cfg.CookieSecure,
		sessionTTL:   cfg.SessionTTL,
	}
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SignIn handles the sign-in form
func (h *Handlers) SignIn(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		CallbackURL string `json:"callback_url"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, _, err := h.bridge.SignIn(c.Request.Context(), core.Identity(req.Email), req.Password)
	if err != nil {
		h.authError(c, err, "Sign-in failed")
		return
	}

	h.setSessionCookie(c, token, int(h.sessionTTL/time.Second))
	c.JSON(http.StatusOK, gin.H{"redirect": service.SafeCallback(req.CallbackURL)})
}

// Credentials handles the credential acquisition form for a signed-in visitor
func (h *Handlers) Credentials(c *gin.Context) {
	var req struct {
		Password    string `json:"password" binding:"required"`
		CallbackURL string `json:"callback_url"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.bridge.Acquire(c.Request.Context(), webSession(c), req.Password); err != nil {
		h.authError(c, err, "Credential acquisition failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect": service.SafeCallback(req.CallbackURL)})
}

// Logout ends the web session and clears backend credentials
func (h *Handlers) Logout(c *gin.Context) {
	err := h.bridge.FullLogout(c.Request.Context(), webSession(c))
	h.setSessionCookie(c, "", -1)

	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("full logout incomplete")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// BackendLogout clears backend credentials and keeps the web session
func (h *Handlers) BackendLogout(c *gin.Context) {
	sess := webSession(c)
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
		return
	}

	if err := h.bridge.SoftLogout(c.Request.Context(), sess.Identity); err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("soft logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out of backend"})
}

// Relay forwards /api/* to the backend through the authenticated proxy.
// Reads are allowed without credentials, writes require them.
func (h *Handlers) Relay(c *gin.Context) {
	target := "/" + strings.TrimLeft(c.Param("path"), "/")
	if c.Request.URL.RawQuery != "" {
		target += "?" + c.Request.URL.RawQuery
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRelayBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	spec := service.RequestSpec{
		Method: c.Request.Method,
		Header: make(http.Header),
		Auth:   service.AuthRequired,
	}
	if len(body) > 0 {
		spec.Body = body
	}
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		spec.Auth = service.AuthOptional
	}
	for _, name := range forwardedHeaders {
		if v := c.GetHeader(name); v != "" {
			spec.Header.Set(name, v)
		}
	}

	var identity core.Identity
	if sess := webSession(c); sess != nil {
		identity = sess.Identity
	}

	res, err := h.bridge.Fetch(c.Request.Context(), identity, target, spec)
	if err != nil {
		h.fetchError(c, err)
		return
	}
	defer res.Response.Body.Close()

	if res.RefreshErr != nil {
		zerolog.Ctx(c.Request.Context()).Info().Err(res.RefreshErr).Str("target", target).Msg("credentials could not be refreshed")
	}

	for name, values := range res.Response.Header {
		if hopHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Status(res.Response.StatusCode)
	if _, err := io.Copy(c.Writer, res.Response.Body); err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("relay body copy interrupted")
	}
}

// Account renders the protected account page from the backend's /users/me
func (h *Handlers) Account(c *gin.Context) {
	sess := webSession(c)
	destination := c.Request.URL.RequestURI()

	res, err := h.bridge.Fetch(c.Request.Context(), sess.Identity, "/users/me", service.RequestSpec{Auth: service.AuthRequired})
	if errors.Is(err, core.ErrUnauthenticated) {
		// Credentials vanished after the content gate ran
		h.redirect(c, h.bridge.ContentGate(core.SessionOnly, destination))
		return
	}
	if err != nil {
		h.fetchError(c, err)
		return
	}
	defer res.Response.Body.Close()

	if res.State == core.Unrecoverable {
		h.redirect(c, h.bridge.ContentGate(core.Unrecoverable, destination))
		return
	}

	body, err := io.ReadAll(res.Response.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Backend response interrupted"})
		return
	}

	contentType := res.Response.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(res.Response.StatusCode, contentType, body)
}

func (h *Handlers) redirect(c *gin.Context, decision service.Decision) {
	if decision.Allowed() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unexpected gate decision"})
		return
	}
	c.Redirect(http.StatusSeeOther, decision.Location)
}

func (h *Handlers) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, value, maxAge, "/", "", h.cookieSecure, true)
}

func (h *Handlers) authError(c *gin.Context, err error, fallback string) {
	var transportErr *core.TransportError

	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, core.ErrNoSession), errors.Is(err, core.ErrSessionRevoked):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session required"})
	case errors.As(err, &transportErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Backend unavailable"})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (h *Handlers) fetchError(c *gin.Context, err error) {
	var transportErr *core.TransportError

	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Backend credentials required"})
	case errors.As(err, &transportErr):
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("backend unreachable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Backend unavailable"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid backend request"})
	}
}
