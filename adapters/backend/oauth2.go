package backend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/layer-3/authbridge/core"
	"github.com/layer-3/authbridge/ports"
)

// OAuth2Refresher refreshes credentials against a standard OAuth2 token endpoint
type OAuth2Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Refresher creates a refresher for the refresh_token grant
func NewOAuth2Refresher(tokenURL, clientID, clientSecret string, httpClient *http.Client) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: tokenURL,
			},
		},
		httpClient: httpClient,
	}
}

var _ ports.RefreshClient = (*OAuth2Refresher)(nil)

// Refresh runs the refresh_token grant
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*core.TokenPair, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	// An empty access token forces the source to hit the token endpoint
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &core.RefreshError{StatusCode: retrieveErr.Response.StatusCode, Err: err}
		}
		return nil, &core.RefreshError{Err: &core.TransportError{Op: "oauth2 refresh", Err: err}}
	}

	pair := &core.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		pair.ExpiresIn = int64(time.Until(token.Expiry).Seconds())
	}

	return pair, nil
}
