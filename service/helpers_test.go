package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/authbridge/adapters/backend"
	"github.com/layer-3/authbridge/adapters/session"
	"github.com/layer-3/authbridge/adapters/store"
	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

// fakeBackend accepts one access token on /orders and exchanges known refresh tokens
type fakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	accepted      string
	pairs         map[string]core.TokenPair
	refreshStatus int
	requests      []recordedRequest
	refreshCalls  []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{pairs: make(map[string]core.TokenPair)}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", fb.handleRefresh)
	mux.HandleFunc("/auth/login", fb.handleLogin)
	mux.HandleFunc("/orders", fb.handleOrders)
	mux.HandleFunc("/users/me", fb.handleOrders)
	mux.HandleFunc("/public", func(w http.ResponseWriter, r *http.Request) {
		fb.record(r)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "public")
	})
	mux.HandleFunc("/reports", fb.handleReports)
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		fb.record(r)
		http.Error(w, "internal failure", http.StatusInternalServerError)
	})

	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.requests = append(fb.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Auth:   r.Header.Get("Authorization"),
		Body:   string(body),
	})
}

func (fb *fakeBackend) handleOrders(w http.ResponseWriter, r *http.Request) {
	fb.record(r)

	fb.mu.Lock()
	accepted := fb.accepted
	fb.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if accepted == "" || r.Header.Get("Authorization") != "Bearer "+accepted {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"token expired"}`)
		return
	}
	_, _ = io.WriteString(w, `{"orders":[{"id":1},{"id":2}]}`)
}

// handleReports answers 403 to any token but the accepted one
func (fb *fakeBackend) handleReports(w http.ResponseWriter, r *http.Request) {
	fb.record(r)

	fb.mu.Lock()
	accepted := fb.accepted
	fb.mu.Unlock()

	if accepted == "" || r.Header.Get("Authorization") != "Bearer "+accepted {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	_, _ = io.WriteString(w, "report")
}

func (fb *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	fb.mu.Lock()
	fb.refreshCalls = append(fb.refreshCalls, req.RefreshToken)
	status := fb.refreshStatus
	pair, ok := fb.pairs[req.RefreshToken]
	fb.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pair)
}

func (fb *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Password != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	fb.mu.Lock()
	fb.accepted = "login-access"
	fb.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(core.TokenPair{
		AccessToken:  "login-access",
		RefreshToken: "login-refresh",
		TokenType:    "Bearer",
		ExpiresIn:    300,
	})
}

func (fb *fakeBackend) setAccepted(token string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.accepted = token
}

func (fb *fakeBackend) setPair(refresh string, pair core.TokenPair) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.pairs[refresh] = pair
}

func (fb *fakeBackend) setRefreshStatus(status int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.refreshStatus = status
}

func (fb *fakeBackend) requestsTo(path string) []recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []recordedRequest
	for _, r := range fb.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (fb *fakeBackend) refreshes() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.refreshCalls...)
}

type fixture struct {
	backend   *fakeBackend
	cache     *store.MemoryCredentialCache
	metrics   *metrics.Metrics
	creds     *Credentials
	refresher *Refresher
	proxy     *Proxy
	sessions  *session.JWTProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fb := newFakeBackend(t)
	cache := store.NewMemoryCredentialCache()
	m := metrics.New(prometheus.NewRegistry())
	logger := zerolog.Nop()

	creds := NewCredentials(cache, time.Second, time.Hour, m, logger)
	refresher := NewRefresher(backend.NewClient(fb.srv.URL, fb.srv.Client()), creds, false, m, logger)
	proxy, err := NewProxy(fb.srv.URL, fb.srv.Client(), creds, refresher, m, logger)
	require.NoError(t, err)

	return &fixture{
		backend:   fb,
		cache:     cache,
		metrics:   m,
		creds:     creds,
		refresher: refresher,
		proxy:     proxy,
		sessions:  session.NewJWTProvider([]byte("test-session-secret"), store.NewMemoryRevocationStore()),
	}
}

func (f *fixture) seed(t *testing.T, identity core.Identity, access, refresh string) *core.CredentialRecord {
	t.Helper()
	rec := &core.CredentialRecord{Access: access, Refresh: refresh, IssuedAt: time.Now(), TTLSeconds: 3600}
	require.NoError(t, f.cache.Set(context.Background(), identity, rec, time.Hour))
	return rec
}

func (f *fixture) cached(t *testing.T, identity core.Identity) *core.CredentialRecord {
	t.Helper()
	rec, err := f.cache.Get(context.Background(), identity)
	require.NoError(t, err)
	return rec
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	return string(body)
}
