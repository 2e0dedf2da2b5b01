package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/ports"
)

const (
	LoginPath   = "/auth/login"
	RefreshPath = "/auth/refresh"
)

// Client talks to the backend's login and refresh endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend auth client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

var (
	_ ports.RefreshClient        = (*Client)(nil)
	_ ports.BackendAuthenticator = (*Client)(nil)
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges identity and password for a token pair
func (c *Client) Login(ctx context.Context, identity core.Identity, password string) (*core.TokenPair, error) {
	status, pair, err := c.post(ctx, LoginPath, loginRequest{Email: string(identity), Password: password})
	if err != nil {
		return nil, err
	}

	switch {
	case core.IsAuthorizationStatus(status):
		return nil, core.ErrInvalidCredentials
	case status < 200 || status > 299:
		return nil, fmt.Errorf("backend login failed with status %d", status)
	}

	return pair, nil
}

// Refresh exchanges a refresh token for a new token pair
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	status, pair, err := c.post(ctx, RefreshPath, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, &core.RefreshError{Err: err}
	}

	if status < 200 || status > 299 {
		return nil, &core.RefreshError{StatusCode: status}
	}

	return pair, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (int, *core.TokenPair, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &core.TransportError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}

	var pair core.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if pair.AccessToken == "" {
		return resp.StatusCode, nil, fmt.Errorf("token response without access_token")
	}

	return resp.StatusCode, &pair, nil
}
