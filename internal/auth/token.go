// Package auth obtains Google Ads API access tokens from a long-lived OAuth
// refresh token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ignite/adchange-monitor/internal/config"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// AdWordsScope is the OAuth scope required by the Google Ads API.
const AdWordsScope = "https://www.googleapis.com/auth/adwords"

// ErrMissingCredentials is returned when client id, secret or refresh token is empty.
var ErrMissingCredentials = errors.New("auth: google ads oauth credentials are not configured")

// TokenProvider is what API clients need from the auth layer.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// TokenSource caches an access token and refreshes it when it expires or
// when the API rejects it.
type TokenSource struct {
	oauth2Config *oauth2.Config
	refreshToken string
	httpClient   *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenSource builds a TokenSource from the google_ads config section.
// httpClient may be nil.
func NewTokenSource(cfg config.GoogleAdsConfig, httpClient *http.Client) (*TokenSource, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, ErrMissingCredentials
	}

	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams}
	}

	return &TokenSource{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{AdWordsScope},
			Endpoint:     endpoint,
		},
		refreshToken: cfg.RefreshToken,
		httpClient:   httpClient,
	}, nil
}

// AccessToken returns the cached token, refreshing it if it is missing or
// about to expire.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token.Valid() {
		return ts.token.AccessToken, nil
	}
	return ts.refreshLocked(ctx)
}

// ForceRefresh discards the cached token and fetches a new one.
func (ts *TokenSource) ForceRefresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.token = nil
	return ts.refreshLocked(ctx)
}

func (ts *TokenSource) refreshLocked(ctx context.Context) (string, error) {
	if ts.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.httpClient)
	}

	src := ts.oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: ts.refreshToken})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			logger.Error("auth: token endpoint rejected refresh",
				"status", rerr.Response.StatusCode, "error_code", rerr.ErrorCode)
		}
		return "", fmt.Errorf("auth: refresh access token: %w", err)
	}

	ts.token = tok
	logger.Debug("auth: access token refreshed", "expiry", tok.Expiry)
	return tok.AccessToken, nil
}
