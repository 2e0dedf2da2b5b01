package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/internal/metrics"
)

const tracerName = "github.com/layer-3/authbridge/service"

// Requirement declares whether a call may proceed without credentials
type Requirement int

const (
	// AuthOptional sends the call without a token when no record exists
	AuthOptional Requirement = iota
	// AuthRequired fails with core.ErrUnauthenticated when no record exists
	AuthRequired
)

// RequestSpec describes an outbound backend call
type RequestSpec struct {
	Method string
	Header http.Header
	Body   []byte
	Auth   Requirement
}

// Result is the outcome of an authenticated call.
// Response is the backend response returned verbatim; the caller closes its body.
type Result struct {
	Response   *http.Response
	State      core.SessionState
	Refreshed  bool  // A refresh succeeded and the call was retried
	Attempts   int   // Backend calls made, 1 or 2
	RefreshErr error // Set when a refresh was attempted and failed
}

// AuthorizationFailed reports whether the returned response is a 401 or 403
func (r *Result) AuthorizationFailed() bool {
	return r != nil && r.Response != nil && core.IsAuthorizationStatus(r.Response.StatusCode)
}

// Proxy performs backend calls on behalf of an identity, attaching its cached
// access token and refreshing it at most once per call.
type Proxy struct {
	baseURL    string
	httpClient *http.Client
	creds      *Credentials
	refresher  *Refresher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewProxy creates a proxy for the backend at baseURL
func NewProxy(baseURL string, httpClient *http.Client, creds *Credentials, refresher *Refresher, m *metrics.Metrics, logger zerolog.Logger) (*Proxy, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Proxy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		creds:      creds,
		refresher:  refresher,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Fetch calls target (a path relative to the backend base URL) for identity.
//
// Authorization failures trigger one refresh. After a successful refresh the
// call is retried once and the retry's response is returned whatever it is.
// After a failed refresh the original response is returned with RefreshErr set.
// Network failures and cancellation are returned as *core.TransportError.
func (p *Proxy) Fetch(ctx context.Context, identity core.Identity, target string, spec RequestSpec) (*Result, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := p.tracer.Start(ctx, "authbridge.fetch", trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("authbridge.target", target),
	))
	defer span.End()

	endpoint, err := p.resolve(target)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := p.fetch(ctx, span, identity, method, endpoint, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", result.Response.StatusCode),
		attribute.String("authbridge.state", result.State.String()),
		attribute.Int("authbridge.attempts", result.Attempts),
	)
	p.metrics.ProxyAttempts.WithLabelValues(method).Observe(float64(result.Attempts))
	return result, nil
}

func (p *Proxy) fetch(ctx context.Context, span trace.Span, identity core.Identity, method, endpoint string, spec RequestSpec) (*Result, error) {
	record := p.creds.Lookup(ctx, identity)
	if record == nil {
		if spec.Auth == AuthRequired {
			p.metrics.ProxyRequestsTotal.WithLabelValues("unauthenticated").Inc()
			return nil, core.ErrUnauthenticated
		}

		resp, err := p.do(ctx, method, endpoint, spec, "")
		if err != nil {
			p.metrics.ProxyRequestsTotal.WithLabelValues("transport_error").Inc()
			return nil, err
		}

		state := core.SessionOnly
		if identity == "" {
			state = core.Anonymous
		}
		p.metrics.ProxyRequestsTotal.WithLabelValues("anonymous").Inc()
		return &Result{Response: resp, State: state, Attempts: 1}, nil
	}

	resp, err := p.do(ctx, method, endpoint, spec, record.Access)
	if err != nil {
		p.metrics.ProxyRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, err
	}

	if !core.IsAuthorizationStatus(resp.StatusCode) {
		p.metrics.ProxyRequestsTotal.WithLabelValues("ok").Inc()
		return &Result{Response: resp, State: core.Authenticated, Attempts: 1}, nil
	}

	if !record.HasRefresh() {
		p.metrics.ProxyRequestsTotal.WithLabelValues("auth_failed").Inc()
		return &Result{Response: resp, State: core.Unrecoverable, Attempts: 1}, nil
	}

	if err := ctx.Err(); err != nil {
		discard(resp)
		p.metrics.ProxyRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, &core.TransportError{Op: method + " " + endpoint, Err: err}
	}

	span.AddEvent("refresh", trace.WithAttributes(attribute.String("authbridge.state", core.Refreshing.String())))
	p.logger.Debug().
		Str("identity", identity.Redacted()).
		Int("status", resp.StatusCode).
		Msg("access token rejected, refreshing")

	next, refreshErr := p.refresher.Refresh(ctx, identity, record)
	if refreshErr != nil && ctx.Err() != nil {
		// The caller went away, not the credentials
		discard(resp)
		p.metrics.ProxyRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, &core.TransportError{Op: method + " " + endpoint, Err: ctx.Err()}
	}
	if refreshErr != nil {
		p.metrics.ProxyRequestsTotal.WithLabelValues("refresh_failed").Inc()
		return &Result{
			Response:   resp,
			State:      core.Unrecoverable,
			Attempts:   1,
			RefreshErr: refreshErr,
		}, nil
	}

	discard(resp)

	if err := ctx.Err(); err != nil {
		p.metrics.ProxyRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, &core.TransportError{Op: method + " " + endpoint, Err: err}
	}

	retry, err := p.do(ctx, method, endpoint, spec, next.Access)
	if err != nil {
		p.metrics.ProxyRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, err
	}

	state := core.Authenticated
	if core.IsAuthorizationStatus(retry.StatusCode) {
		state = core.Unrecoverable
	}
	p.metrics.ProxyRequestsTotal.WithLabelValues("refreshed").Inc()
	return &Result{Response: retry, State: state, Refreshed: true, Attempts: 2}, nil
}

// do executes one attempt. Bodies are replayed from spec so a retry sends the same payload.
func (p *Proxy) do(ctx context.Context, method, endpoint string, spec RequestSpec, access string) (*http.Response, error) {
	var body io.Reader
	if spec.Body != nil {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if spec.Header != nil {
		req.Header = spec.Header.Clone()
	}
	req.Header.Del("Authorization")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &core.TransportError{Op: method + " " + endpoint, Err: err}
	}
	return resp, nil
}

// resolve joins target onto the backend base URL. Absolute targets are
// rejected so tokens are never sent to another host.
func (p *Proxy) resolve(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}
	if u.IsAbs() || u.Host != "" {
		return "", fmt.Errorf("invalid target %q: must be relative to the backend", target)
	}
	return p.baseURL + "/" + strings.TrimLeft(target, "/"), nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
