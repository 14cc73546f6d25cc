package agent_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwj1kor/Agentic-sso/internal/agent"
	"github.com/zwj1kor/Agentic-sso/internal/sso/app"
	"github.com/zwj1kor/Agentic-sso/pkg/authsdk"
	"github.com/zwj1kor/Agentic-sso/pkg/oidctest"
)

type fixture struct {
	provider *oidctest.Provider
	broker   *httptest.Server
	agent    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p := oidctest.Start(t)

	broker, err := app.New(app.Config{
		Issuer:             p.Issuer(),
		Discovery:          true,
		ClientID:           p.ClientID(),
		ClientSecret:       p.ClientSecret(),
		RedirectURI:        "http://broker.test/auth/callback",
		CookieSecret:       "0123456789abcdef0123456789abcdef",
		CookieName:         "sso_session",
		CookieSameSite:     "lax",
		SessionTTL:         time.Hour,
		StateTTL:           time.Minute,
		HTTPClientTimeout:  5 * time.Second,
		FrontendURL:        "/",
		FrontendFailureURL: "/?error=login_failed",
		StoreDriver:        app.StoreMemory,
		Env:                "dev",
		LogLevel:           "error",
		Port:               8000,
	})
	require.NoError(t, err)
	brokerSrv := httptest.NewServer(broker.Handler())
	t.Cleanup(brokerSrv.Close)

	return &fixture{
		provider: p,
		broker:   brokerSrv,
		agent:    startAgent(t, brokerSrv.URL),
	}
}

func startAgent(t *testing.T, backendURL string) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(agent.NewRouter(agent.New(backendURL, 5*time.Second), logger, nil))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	resp, err := http.Post(srv.URL+path, "application/json", rd)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func health(t *testing.T, srv *httptest.Server) agent.HealthResponse {
	t.Helper()
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var h agent.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	return h
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	status, body := post(t, f.agent, "/sso_login", nil)
	require.Equal(t, http.StatusOK, status)
	authURL, _ := body["auth_url"].(string)
	require.NotEmpty(t, authURL)

	back, err := f.provider.Authorize(authURL)
	require.NoError(t, err)

	status, body = post(t, f.agent, "/sso_callback", agent.CallbackRequest{
		Code:  back.Get("code"),
		State: back.Get("state"),
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "OK", body["status"])
}

func TestAgentSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	status, body := post(t, f.agent, "/sso_me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, authsdk.ErrorCodeUnauthenticated, body["error"])
	assert.Equal(t, 0, health(t, f.agent).ActiveSessions)

	f.login(t)
	assert.Equal(t, 1, health(t, f.agent).ActiveSessions)

	status, body = post(t, f.agent, "/sso_me", nil)
	require.Equal(t, http.StatusOK, status)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, oidctest.DefaultUser.Email, user["email"])

	status, body = post(t, f.agent, "/sso_logout", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0, health(t, f.agent).ActiveSessions)

	status, _ = post(t, f.agent, "/sso_me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAgentFailedCallbackKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	status, body := post(t, f.agent, "/sso_callback", agent.CallbackRequest{Code: "forged", State: "forged"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "backend_error", body["error"])

	status, _ = post(t, f.agent, "/sso_me", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAgentCallbackBadRequest(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing code", body: agent.CallbackRequest{State: "abc"}},
		{name: "empty body", body: nil},
		{name: "invalid json", body: "{not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, f.agent, "/sso_callback", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, authsdk.ErrorCodeInvalidRequest, body["error"])
		})
	}
}

func TestAgentBackendUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	srv := startAgent(t, url)

	status, body := post(t, srv, "/sso_login", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "connection_error", body["error"])

	status, body = post(t, srv, "/sso_me", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "connection_error", body["error"])

	status, body = post(t, srv, "/sso_logout", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "connection_error", body["error"])
}
