package oidc_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwj1kor/Agentic-sso/internal/sso/oidc"
	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
	"github.com/zwj1kor/Agentic-sso/pkg/oidctest"
)

func TestSigningKeys_Cached(t *testing.T) {
	p := oidctest.Start(t)
	clock := &fakeClock{now: time.Now()}
	c := newClient(t, p, clock)
	ctx := context.Background()

	ks, err := c.SigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{p.CurrentKID()}, ks.KIDs())
	assert.Equal(t, clock.Now(), ks.FetchedAt())

	_, err = c.SigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.JWKSRequests())
}

func TestSigningKeys_StaleRefetch(t *testing.T) {
	p := oidctest.Start(t)
	clock := &fakeClock{now: time.Now()}
	c := newClient(t, p, clock)
	ctx := context.Background()

	_, err := c.SigningKeys(ctx)
	require.NoError(t, err)

	clock.Advance(oidc.DefaultKeysMaxAge)
	_, err = c.SigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.JWKSRequests())
}

func TestRefreshSigningKeys_RateLimited(t *testing.T) {
	p := oidctest.Start(t)
	clock := &fakeClock{now: time.Now()}
	c := newClient(t, p, clock)
	ctx := context.Background()

	_, err := c.SigningKeys(ctx)
	require.NoError(t, err)

	for range 5 {
		_, err = c.RefreshSigningKeys(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.JWKSRequests())

	clock.Advance(oidc.DefaultMinRefreshInterval)
	_, err = c.RefreshSigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.JWKSRequests())
}

func TestSigningKeys_EmptySetThrottled(t *testing.T) {
	p := oidctest.Start(t)
	clock := &fakeClock{now: time.Now()}
	c := newClient(t, p, clock)
	ctx := context.Background()

	p.FailJWKS(true)
	for range 5 {
		_, err := c.SigningKeys(ctx)
		require.ErrorIs(t, err, oidc.ErrJWKSFetch)
	}
	assert.Equal(t, 1, p.JWKSRequests())

	p.FailJWKS(false)
	_, err := c.SigningKeys(ctx)
	require.ErrorIs(t, err, oidc.ErrJWKSFetch, "still within the refresh interval")

	clock.Advance(oidc.DefaultMinRefreshInterval)
	ks, err := c.SigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{p.CurrentKID()}, ks.KIDs())
	assert.Equal(t, 2, p.JWKSRequests())
}

func TestValidate_KeyRotation(t *testing.T) {
	p := oidctest.Start(t)
	clock := &fakeClock{now: time.Now()}
	c := newClient(t, p, clock)
	ctx := context.Background()

	v := jwtx.NewIDTokenValidator(c, jwtx.ValidatorConfig{Issuer: p.Issuer(), ClientID: p.ClientID()})

	raw, err := p.Sign(p.Claims("n-1"))
	require.NoError(t, err)
	_, err = v.Validate(ctx, raw, "n-1")
	require.NoError(t, err)

	oldKID := p.CurrentKID()
	newKID, err := p.RotateKey("ES256")
	require.NoError(t, err)
	p.RetireOldKeys()

	raw, err = p.Sign(p.Claims("n-2"))
	require.NoError(t, err)

	// Inside the refresh interval the unknown kid is rejected without a fetch.
	_, err = v.Validate(ctx, raw, "n-2")
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	assert.Equal(t, 1, p.JWKSRequests())

	clock.Advance(oidc.DefaultMinRefreshInterval)
	claims, err := v.Validate(ctx, raw, "n-2")
	require.NoError(t, err)
	assert.Equal(t, oidctest.DefaultUser.Subject, claims.Subject)
	assert.Equal(t, 2, p.JWKSRequests())

	ks, err := c.SigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{newKID}, ks.KIDs())
	_, err = ks.Get(oldKID)
	assert.ErrorIs(t, err, jwtx.ErrNoKey)
}

func TestValidate_ProviderClaimOverrides(t *testing.T) {
	p := oidctest.Start(t)
	c := newClient(t, p, &fakeClock{now: time.Now()})
	v := jwtx.NewIDTokenValidator(c, jwtx.ValidatorConfig{Issuer: p.Issuer(), ClientID: p.ClientID()})

	p.SetClaimsHook(func(c *jwtx.IDClaims) { c.Audience = jwt.ClaimStrings{"someone-else"} })
	raw, err := p.Sign(p.Claims("n"))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), raw, "n")
	require.ErrorIs(t, err, jwtx.ErrAudience)
}
