package auth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ignite/adchange-monitor/internal/config"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-abc", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))

		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) config.GoogleAdsConfig {
	return config.GoogleAdsConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-abc",
		TokenURL:     tokenURL,
	}
}

func TestTokenSource_CachesToken(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)

	ts, err := NewTokenSource(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenSource_ForceRefresh(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls)

	ts, err := NewTokenSource(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	_, err = ts.AccessToken(context.Background())
	require.NoError(t, err)

	tok, err := ts.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenSource_EndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	ts, err := NewTokenSource(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	_, err = ts.AccessToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth: refresh access token")
}

func TestNewTokenSource_MissingCredentials(t *testing.T) {
	_, err := NewTokenSource(config.GoogleAdsConfig{ClientID: "x"}, nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestTokenSource_RefreshLogOmitsAccessToken(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.SetOutput(&buf)
	logger.Configure("debug", false)
	t.Cleanup(func() {
		logger.SetOutput(prev)
		logger.Configure("info", true)
	})

	var calls int32
	srv := newTokenServer(t, &calls)
	ts, err := NewTokenSource(testConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)

	assert.Contains(t, buf.String(), "access token refreshed")
	assert.Contains(t, buf.String(), "expiry")
	assert.NotContains(t, buf.String(), "tok-1")
}
