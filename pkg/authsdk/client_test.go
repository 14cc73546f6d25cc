package authsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwj1kor/Agentic-sso/pkg/authsdk"
	"github.com/zwj1kor/Agentic-sso/pkg/httpx"
)

const (
	stubCookie  = "sso_session"
	stubSession = "v1.sealed-session"
	idpURL      = "https://idp.example.com/authorize?state=abc"
)

// stubBroker answers like the broker for a single session value.
func stubBroker(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, idpURL, http.StatusFound)
	})
	mux.HandleFunc("GET /auth/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "abc" || r.URL.Query().Get("code") == "" {
			http.Redirect(w, r, "/?error=login_failed", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: stubCookie, Value: stubSession, Path: "/", HttpOnly: true})
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(stubCookie)
		if err != nil || ck.Value != stubSession {
			authsdk.ErrUnauthenticated.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{
			User:      authsdk.UserInfo{Subject: "user-1", Email: "ada@example.com", Name: "Ada"},
			Claims:    map[string]any{"sub": "user-1"},
			ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: stubCookie, Value: "", Path: "/", MaxAge: -1})
		httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{Status: "ok"})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{Status: "ok", Uptime: "1s", Version: "test"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	srv := stubBroker(t)
	client := authsdk.NewSDKClient(srv.URL + "/")

	authURL, err := client.LoginURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, idpURL, authURL)

	_, err = client.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthenticated)

	dest, err := client.Callback(ctx, "the-code", "abc")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", dest)
	require.Len(t, client.SessionCookies(), 1)
	assert.Equal(t, stubSession, client.SessionCookies()[0].Value)

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", me.User.Subject)
	assert.Equal(t, "ada@example.com", me.User.Email)
	assert.Equal(t, "user-1", me.Claims["sub"])

	require.NoError(t, client.Logout(ctx))
	assert.Empty(t, client.SessionCookies())

	_, err = client.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthenticated)
}

func TestCallbackFailureSetsNoCookie(t *testing.T) {
	srv := stubBroker(t)
	client := authsdk.NewSDKClient(srv.URL)

	dest, err := client.Callback(context.Background(), "the-code", "wrong")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/?error=login_failed", dest)
	assert.Empty(t, client.SessionCookies())
}

func TestRedirectExpected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})
	})
	plain := httptest.NewServer(mux)
	t.Cleanup(plain.Close)

	_, err := authsdk.NewSDKClient(plain.URL).LoginURL(context.Background())
	require.ErrorIs(t, err, authsdk.ErrNoRedirect)
}

func TestLoginURLServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/login", func(w http.ResponseWriter, r *http.Request) {
		authsdk.ErrServerError.WriteError(w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, err := authsdk.NewSDKClient(srv.URL).LoginURL(context.Background())
	require.ErrorIs(t, err, authsdk.ErrServerError)

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := stubBroker(t)

	health, err := authsdk.NewSDKClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Nil(t, health.Checks)
}

func TestReadinessDegraded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, authsdk.HealthResponse{
			Status: "degraded",
			Checks: &authsdk.HealthChecks{Store: "error", SigningKeys: "ok"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	health, err := authsdk.NewSDKClient(srv.URL).Readiness(context.Background())
	require.Error(t, err)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "error", health.Checks.Store)

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, authsdk.ErrorCodeUnavailable, apiErr.Code)
}

func TestAPIErrorIs(t *testing.T) {
	err := authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated, "session expired")

	assert.True(t, errors.Is(err, authsdk.ErrUnauthenticated))
	assert.False(t, errors.Is(err, authsdk.ErrServerError))
	assert.Equal(t, "401 unauthenticated: session expired", err.Error())
	assert.Equal(t, "500 server_error: internal server error", authsdk.ErrServerError.Error())
}
