package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/authbridge"
	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
	"github.com/layer-3/authbridge/service"
)

const (
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID = "requestID"
	ctxKeySession   = "webSession"
	ctxKeyState     = "sessionState"
)

// RequestID tags every request with an id, reusing the inbound header when present.
// A request scoped logger carrying the id is attached to the request context.
func RequestID(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}

		c.Set(ctxKeyRequestID, id)
		c.Header(RequestIDHeader, id)

		reqLogger := logger.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		c.Next()
	}
}

// AccessLog writes one line per request
func AccessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}

		event.
			Str("request_id", c.GetString(ctxKeyRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// LoadSession reads the session cookie and resolves the visitor's state.
// An unreadable cookie counts as no session.
func LoadSession(bridge authbridge.Bridge, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess *core.WebSession
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			parsed, err := bridge.ParseSession(token)
			if err != nil {
				zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("ignoring invalid session cookie")
			} else {
				sess = parsed
			}
		}

		c.Set(ctxKeySession, sess)
		c.Set(ctxKeyState, bridge.ResolveSessionState(c.Request.Context(), sess))

		c.Next()
	}
}

// RouteGate stops visitors without a web session
func RouteGate(bridge authbridge.Bridge, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := bridge.RouteGate(sessionState(c), c.Request.URL.RequestURI())
		m.GateDecisionsTotal.WithLabelValues("route", decision.Action.String()).Inc()

		if !decision.Allowed() {
			deny(c, decision)
			return
		}
		c.Next()
	}
}

// ContentGate stops visitors without usable backend credentials
func ContentGate(bridge authbridge.Bridge, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := bridge.ContentGate(sessionState(c), c.Request.URL.RequestURI())
		m.GateDecisionsTotal.WithLabelValues("content", decision.Action.String()).Inc()

		if !decision.Allowed() {
			deny(c, decision)
			return
		}
		c.Next()
	}
}

// deny redirects browsers and answers API clients with the redirect target
func deny(c *gin.Context, decision service.Decision) {
	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":    "authentication required",
			"redirect": decision.Location,
		})
		return
	}
	c.Redirect(http.StatusSeeOther, decision.Location)
	c.Abort()
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}

func webSession(c *gin.Context) *core.WebSession {
	sess, _ := c.Get(ctxKeySession)
	ws, _ := sess.(*core.WebSession)
	return ws
}

func sessionState(c *gin.Context) core.SessionState {
	state, ok := c.Get(ctxKeyState)
	if !ok {
		return core.Anonymous
	}
	s, _ := state.(core.SessionState)
	return s
}
