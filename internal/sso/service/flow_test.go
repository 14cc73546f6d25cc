package service_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwj1kor/Agentic-sso/internal/sso/oidc"
	"github.com/zwj1kor/Agentic-sso/internal/sso/service"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/drivers/memory"
	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
	"github.com/zwj1kor/Agentic-sso/pkg/oidctest"
)

type harness struct {
	flow     *service.AuthFlow
	provider *oidctest.Provider
	store    *memory.Store
	now      time.Time
}

func (h *harness) clock() time.Time { return h.now }

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	p := oidctest.Start(t)
	client, err := oidc.New(ctx, oidc.Config{
		Issuer:       p.Issuer(),
		ClientID:     p.ClientID(),
		ClientSecret: p.ClientSecret(),
		RedirectURL:  "http://localhost:8000/auth/callback",
		Discovery:    true,
	})
	require.NoError(t, err)

	cookies, err := service.NewCookieCodec(bytes.Repeat([]byte("s"), 32), "sso_session")
	require.NoError(t, err)

	h := &harness{provider: p, store: memory.NewStore(), now: time.Now()}
	h.flow = &service.AuthFlow{
		States:    &service.StateService{Store: h.store.LoginAttempts(), SweepOnIssue: true},
		Sessions:  &service.SessionService{Store: h.store.Sessions(), TTL: time.Hour, Now: h.clock},
		Cookies:   cookies,
		Provider:  client,
		Validator: jwtx.NewIDTokenValidator(client, jwtx.ValidatorConfig{Issuer: p.Issuer(), ClientID: p.ClientID()}),
	}
	return h
}

// browse runs login and the provider leg, returning what the provider
// redirected back with.
func (h *harness) browse(t *testing.T) service.CallbackRequest {
	t.Helper()
	authURL, err := h.flow.Login(context.Background())
	require.NoError(t, err)

	q, err := h.provider.Authorize(authURL)
	require.NoError(t, err)
	return service.CallbackRequest{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// sessionCount drains the store, so call it last.
func (h *harness) sessionCount(t *testing.T) int64 {
	t.Helper()
	n, err := h.store.Sessions().DeleteExpiredSessions(context.Background(), h.now.Add(100*365*24*time.Hour))
	require.NoError(t, err)
	return n
}

func TestScenarioA_UnissuedState(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	req := h.browse(t)
	req.State = "never-issued"

	res, err := h.flow.Callback(context.Background(), req)
	require.ErrorIs(t, err, service.ErrStateMismatch)
	assert.Nil(t, res)
	assert.Equal(t, "state_mismatch", service.FailureReason(err))
	assert.Zero(t, h.provider.TokenRequests(), "no exchange without a valid state")
	assert.Zero(t, h.sessionCount(t))
}

func TestScenarioB_AudienceMismatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.provider.SetClaimsHook(func(c *jwtx.IDClaims) { c.Audience = jwt.ClaimStrings{"another-client"} })

	_, err := h.flow.Callback(context.Background(), h.browse(t))
	require.ErrorIs(t, err, jwtx.ErrInvalidClaims)
	require.ErrorIs(t, err, jwtx.ErrAudience)
	assert.Equal(t, "invalid_claims", service.FailureReason(err))
	assert.Zero(t, h.sessionCount(t))
}

func TestScenarioC_WhoAmI(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.flow.Callback(ctx, h.browse(t))
	require.NoError(t, err)
	require.NotEmpty(t, res.CookieValue)
	assert.NotContains(t, res.CookieValue, res.Session.ID)

	sess, err := h.flow.WhoAmI(ctx, res.CookieValue)
	require.NoError(t, err)
	assert.Equal(t, res.Session.Claims, sess.Claims)
	assert.Equal(t, oidctest.DefaultUser.Subject, sess.Claims.Subject)
	assert.Equal(t, oidctest.DefaultUser.Email, sess.Claims.Email)
	assert.Equal(t, oidctest.DefaultUser.Name, sess.Claims.Name)
	assert.Equal(t, h.provider.Issuer(), sess.Claims.Issuer)
	assert.Equal(t, oidctest.DefaultTenantID, sess.Claims.TenantID)
}

func TestScenarioD_Logout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.flow.Callback(ctx, h.browse(t))
	require.NoError(t, err)

	require.NoError(t, h.flow.Logout(ctx, res.CookieValue))

	_, err = h.flow.WhoAmI(ctx, res.CookieValue)
	require.ErrorIs(t, err, service.ErrUnauthenticated)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, h.flow.Logout(ctx, res.CookieValue), "second logout is harmless")
	require.NoError(t, h.flow.Logout(ctx, ""), "logout without a cookie is harmless")
	require.NoError(t, h.flow.Logout(ctx, "garbage"))
}

func TestScenarioE_ExpiredSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.flow.Callback(ctx, h.browse(t))
	require.NoError(t, err)

	h.now = h.now.Add(time.Hour)
	_, err = h.flow.WhoAmI(ctx, res.CookieValue)
	require.ErrorIs(t, err, service.ErrUnauthenticated)
	require.ErrorIs(t, err, store.ErrExpired)

	_, err = h.store.Sessions().GetSessionByHash(ctx, res.Session.IDHash)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCallback_ReplayedResponse(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	req := h.browse(t)
	_, err := h.flow.Callback(ctx, req)
	require.NoError(t, err)

	_, err = h.flow.Callback(ctx, req)
	require.ErrorIs(t, err, service.ErrStateMismatch)
	assert.Equal(t, 1, h.provider.TokenRequests())
}

func TestCallback_ProviderDenied(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.provider.DenyAuthorization("access_denied", "user cancelled")

	req := h.browse(t)
	require.Empty(t, req.Code)

	_, err := h.flow.Callback(ctx, req)
	require.ErrorIs(t, err, service.ErrProviderDenied)
	assert.Equal(t, "provider_error", service.FailureReason(err))
	assert.Contains(t, err.Error(), "user cancelled")

	// The attempt was used up by the error response.
	_, err = h.flow.Callback(ctx, service.CallbackRequest{State: req.State, Code: "x"})
	require.ErrorIs(t, err, service.ErrStateMismatch)
}

func TestCallback_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(*oidctest.Provider)
		mutate func(*service.CallbackRequest)
		reason string
	}{
		{
			name:   "missing code",
			mutate: func(r *service.CallbackRequest) { r.Code = "" },
			reason: "missing_code",
		},
		{
			name:   "unknown code",
			mutate: func(r *service.CallbackRequest) { r.Code = "forged" },
			reason: "exchange_failed",
		},
		{
			name:   "token endpoint down",
			setup:  func(p *oidctest.Provider) { p.FailToken(http.StatusBadGateway, "server_error", "") },
			reason: "exchange_failed",
		},
		{
			name:   "nonce mismatch",
			setup:  func(p *oidctest.Provider) { p.SetClaimsHook(func(c *jwtx.IDClaims) { c.Nonce = "replayed" }) },
			reason: "invalid_claims",
		},
		{
			name:   "wrong issuer",
			setup:  func(p *oidctest.Provider) { p.SetClaimsHook(func(c *jwtx.IDClaims) { c.Issuer = "https://evil.example" }) },
			reason: "invalid_claims",
		},
		{
			name: "expired token",
			setup: func(p *oidctest.Provider) {
				p.SetClaimsHook(func(c *jwtx.IDClaims) {
					c.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
					c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				})
			},
			reason: "token_expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h.provider)
			}
			req := h.browse(t)
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			res, err := h.flow.Callback(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.reason, service.FailureReason(err), "%v", err)
			assert.Zero(t, h.sessionCount(t))
		})
	}
}

func TestWhoAmI_Rejects(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.flow.Callback(ctx, h.browse(t))
	require.NoError(t, err)

	for _, v := range []string{"", "v1.", "not-a-cookie", res.CookieValue + "AAAA"} {
		_, err := h.flow.WhoAmI(ctx, v)
		require.ErrorIs(t, err, service.ErrUnauthenticated, v)
	}
}
