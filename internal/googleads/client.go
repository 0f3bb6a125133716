// Package googleads is a minimal Google Ads REST client: searchStream
// queries for change events and campaign metrics.
package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/adchange-monitor/internal/auth"
	"github.com/ignite/adchange-monitor/internal/config"
	"github.com/ignite/adchange-monitor/internal/pkg/httpretry"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

// Client is a Google Ads API client bound to one customer account.
type Client struct {
	baseURL         string
	apiVersion      string
	customerID      string
	loginCustomerID string
	developerToken  string
	queryLimit      int
	location        *time.Location

	tokens     auth.TokenProvider
	httpClient httpretry.HTTPDoer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the retrying HTTP client.
func WithHTTPClient(doer httpretry.HTTPDoer) Option {
	return func(c *Client) { c.httpClient = doer }
}

// WithQueryLimit overrides the change_event LIMIT clause.
func WithQueryLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queryLimit = n
		}
	}
}

// NewClient creates a new Google Ads API client.
func NewClient(cfg config.GoogleAdsConfig, tokens auth.TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion:      cfg.APIVersion,
		customerID:      cfg.CustomerID,
		loginCustomerID: cfg.LoginCustomerID,
		developerToken:  cfg.DeveloperToken,
		queryLimit:      10000,
		location:        cfg.Location(),
		tokens:          tokens,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, cfg.MaxRetries),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location is the account timezone used to render query timestamps.
func (c *Client) Location() *time.Location {
	return c.location
}

func (c *Client) searchStreamURL() string {
	return fmt.Sprintf("%s/%s/customers/%s/googleAds:searchStream", c.baseURL, c.apiVersion, c.customerID)
}

// Search runs a GAQL query through searchStream and flattens the batches.
// An authentication failure triggers one forced token refresh and a single
// retry.
func (c *Client) Search(ctx context.Context, query string) ([]Row, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := c.doSearch(ctx, token, query)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return rows, err
	}

	logger.Warn("googleads: authentication rejected, refreshing token", "status", authErr.StatusCode)
	token, err = c.tokens.ForceRefresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("googleads: refresh after auth failure: %w", err)
	}
	return c.doSearch(ctx, token, query)
}

func (c *Client) doSearch(ctx context.Context, token, query string) ([]Row, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchStreamURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("developer-token", c.developerToken)
	req.Header.Set("Content-Type", "application/json")
	if c.loginCustomerID != "" {
		req.Header.Set("login-customer-id", c.loginCustomerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyFailure(resp.StatusCode, body)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var batches []SearchBatch
	if err := json.Unmarshal(body, &batches); err != nil {
		return nil, fmt.Errorf("parsing searchStream response: %w", err)
	}

	var rows []Row
	for _, b := range batches {
		rows = append(rows, b.Results...)
	}
	return rows, nil
}
