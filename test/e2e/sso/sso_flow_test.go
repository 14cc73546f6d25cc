package sso_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwj1kor/Agentic-sso/pkg/authsdk"
	"github.com/zwj1kor/Agentic-sso/pkg/oidctest"
)

// TestLoginAcrossReplicas starts a login on one replica, finishes it on a
// second and reads the session from both.
func TestLoginAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	p := oidctest.Start(t)
	cfg := brokerConfig(t, p)
	replicaA := startBroker(t, cfg)
	replicaB := startBroker(t, cfg)

	client := authsdk.NewSDKClient(replicaA)
	code, state := startLogin(t, client, p)

	// Both replicas listen on the same host, so the jar carries the cookie
	// between them.
	client.BaseURL = replicaB
	dest, err := client.Callback(ctx, code, state)
	require.NoError(t, err)
	require.Equal(t, frontendURL, dest)

	for _, base := range []string{replicaA, replicaB} {
		client.BaseURL = base
		me, err := client.Me(ctx)
		require.NoError(t, err, "replica %s", base)
		assert.Equal(t, oidctest.DefaultUser.Subject, me.User.Subject)
		assert.Equal(t, oidctest.DefaultUser.Name, me.User.Name)
		assert.Equal(t, p.Issuer(), me.Claims["iss"])
	}

	client.BaseURL = replicaB
	require.NoError(t, client.Logout(ctx))

	client.BaseURL = replicaA
	_, err = client.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthenticated)
}

func TestLoggedOutCookieIsRejected(t *testing.T) {
	ctx := context.Background()
	p := oidctest.Start(t)
	base := startBroker(t, brokerConfig(t, p))

	client := authsdk.NewSDKClient(base)
	login(t, client, p)
	stolen := client.SessionCookies()
	require.Len(t, stolen, 1)

	require.NoError(t, client.Logout(ctx))

	require.Empty(t, client.SessionCookies())

	u, err := url.Parse(base)
	require.NoError(t, err)
	replay := authsdk.NewSDKClient(base)
	replay.HTTPClient.Jar.SetCookies(u, stolen)

	_, err = replay.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthenticated)
}

func TestStateIsSingleUseAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	p := oidctest.Start(t)
	cfg := brokerConfig(t, p)
	replicaA := startBroker(t, cfg)
	replicaB := startBroker(t, cfg)

	first := authsdk.NewSDKClient(replicaA)
	code, state := startLogin(t, first, p)
	dest, err := first.Callback(ctx, code, state)
	require.NoError(t, err)
	require.Equal(t, frontendURL, dest)

	attacker := authsdk.NewSDKClient(replicaB)
	dest, err = attacker.Callback(ctx, code, state)
	require.NoError(t, err)
	assert.Equal(t, failureURL, dest)
	assert.Empty(t, attacker.SessionCookies())

	_, err = attacker.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthenticated)
}

func TestIndependentUsers(t *testing.T) {
	ctx := context.Background()
	p := oidctest.Start(t)
	base := startBroker(t, brokerConfig(t, p))

	alice := authsdk.NewSDKClient(base)
	login(t, alice, p)

	p.SetUser(oidctest.User{Subject: "user-0002", Name: "Grace Hopper", Email: "grace@example.com"})
	grace := authsdk.NewSDKClient(base)
	login(t, grace, p)

	me, err := alice.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, oidctest.DefaultUser.Email, me.User.Email)

	me, err = grace.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", me.User.Email)

	require.NoError(t, alice.Logout(ctx))
	_, err = grace.Me(ctx)
	require.NoError(t, err, "one user's logout must not end another's session")
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	p := oidctest.Start(t)
	cfg := brokerConfig(t, p)
	cfg.SessionTTL = 2 * time.Second
	base := startBroker(t, cfg)

	client := authsdk.NewSDKClient(base)
	login(t, client, p)

	_, err := client.Me(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := client.Me(ctx)
		return err != nil
	}, 10*time.Second, 250*time.Millisecond)

	_, err = client.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrUnauthenticated)
}

func TestProviderKeyRotation(t *testing.T) {
	ctx := context.Background()
	p := oidctest.Start(t)
	base := startBroker(t, brokerConfig(t, p))

	client := authsdk.NewSDKClient(base)
	login(t, client, p)

	_, err := p.RotateKey("ES256")
	require.NoError(t, err)
	p.RetireOldKeys()

	// The new kid is unknown to the broker until it refetches the JWKS.
	time.Sleep(5 * time.Millisecond)
	second := authsdk.NewSDKClient(base)
	login(t, second, p)

	me, err := second.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, oidctest.DefaultUser.Subject, me.User.Subject)
}

func TestProviderDeniesLogin(t *testing.T) {
	p := oidctest.Start(t)
	base := startBroker(t, brokerConfig(t, p))
	p.DenyAuthorization("access_denied", "user cancelled")

	client := authsdk.NewSDKClient(base)
	authURL, err := client.LoginURL(context.Background())
	require.NoError(t, err)

	back, err := p.Authorize(authURL)
	require.NoError(t, err)
	require.Equal(t, "access_denied", back.Get("error"))

	dest, err := client.Callback(context.Background(), "", back.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, failureURL, dest)
	assert.Empty(t, client.SessionCookies())
}

func TestHealthAndReadiness(t *testing.T) {
	ctx := context.Background()
	p := oidctest.Start(t)
	client := authsdk.NewSDKClient(startBroker(t, brokerConfig(t, p)))

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	ready, err := client.Readiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	assert.Equal(t, "ok", ready.Checks.Store)
	assert.Equal(t, "ok", ready.Checks.SigningKeys)
}
