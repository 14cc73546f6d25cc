package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
	"github.com/zwj1kor/Agentic-sso/pkg/slogx"
)

const maxJWKSBody = 1 << 20

// keyCache holds the provider's JWKS. A fetch happens on first use, when
// the set is older than maxAge, and on demand when a token names an
// unknown kid, but never more often than minInterval.
type keyCache struct {
	hc          *http.Client
	url         string
	minInterval time.Duration
	maxAge      time.Duration
	now         func() time.Time

	set *jwtx.KeySet

	mu          sync.Mutex
	lastAttempt time.Time
}

func newKeyCache(hc *http.Client, url string, minInterval, maxAge time.Duration, now func() time.Time) *keyCache {
	if minInterval <= 0 {
		minInterval = DefaultMinRefreshInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultKeysMaxAge
	}
	return &keyCache{
		hc:          hc,
		url:         url,
		minInterval: minInterval,
		maxAge:      maxAge,
		now:         now,
		set:         jwtx.NewKeySet(),
	}
}

// SigningKeys returns the cached key set, fetching it when it is empty or
// stale. A failed routine refetch keeps serving the stale keys.
func (c *Client) SigningKeys(ctx context.Context) (*jwtx.KeySet, error) {
	k := c.keys
	if !k.set.IsReady() {
		return k.refresh(ctx)
	}
	if k.now().Sub(k.set.FetchedAt()) >= k.maxAge {
		if _, err := k.refresh(ctx); err != nil {
			slogx.FromContext(ctx).WarnContext(ctx, "using stale signing keys", "error", err)
		}
	}
	return k.set, nil
}

// RefreshSigningKeys refetches the JWKS unless the last attempt was within
// the minimum refresh interval, in which case the cached set is returned.
func (c *Client) RefreshSigningKeys(ctx context.Context) (*jwtx.KeySet, error) {
	return c.keys.refresh(ctx)
}

// refresh fetches the JWKS at most once per minInterval. A throttled call
// with no keys cached yet fails with ErrJWKSFetch.
func (k *keyCache) refresh(ctx context.Context) (*jwtx.KeySet, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if !k.lastAttempt.IsZero() && now.Sub(k.lastAttempt) < k.minInterval {
		if !k.set.IsReady() {
			return nil, fmt.Errorf("%w: throttled after failed fetch", ErrJWKSFetch)
		}
		return k.set, nil
	}
	k.lastAttempt = now

	jwks, err := k.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := k.set.ResetFromJWKS(jwks, now); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetch, err)
	}

	slogx.FromContext(ctx).InfoContext(ctx, "signing keys refreshed", "kids", k.set.KIDs())
	return k.set, nil
}

func (k *keyCache) fetch(ctx context.Context) (jwtx.JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("%w: %w", ErrJWKSFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.hc.Do(req)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("%w: %w", ErrJWKSFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jwtx.JWKS{}, fmt.Errorf("%w: status %d", ErrJWKSFetch, resp.StatusCode)
	}

	var jwks jwtx.JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBody)).Decode(&jwks); err != nil {
		return jwtx.JWKS{}, fmt.Errorf("%w: decode: %w", ErrJWKSFetch, err)
	}
	return jwks, nil
}
