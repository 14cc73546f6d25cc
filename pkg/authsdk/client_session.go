package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrNoRedirect is returned when the broker answered without a redirect
// where one was expected.
var ErrNoRedirect = errors.New("authsdk: expected a redirect")

// LoginURL starts a login and returns the identity provider URL the user
// must open.
func (c *SDKClient) LoginURL(ctx context.Context) (string, error) {
	return c.redirect(ctx, "/auth/login")
}

// Callback replays the provider's redirect to the broker. On success the
// broker session cookie is stored in the client's jar and the frontend
// URL the broker redirected to is returned. A failed login is reported by
// the broker as a redirect to its failure destination, so callers compare
// the returned URL or call Me to learn the outcome.
func (c *SDKClient) Callback(ctx context.Context, code, state string) (string, error) {
	q := url.Values{}
	q.Set("code", code)
	q.Set("state", state)
	return c.redirect(ctx, "/auth/callback?"+q.Encode())
}

// Me returns the signed-in user. It fails with ErrUnauthenticated when the
// client holds no live session.
func (c *SDKClient) Me(ctx context.Context) (*MeResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var me MeResponse
	if err := decodeJSON(resp, &me, http.StatusOK); err != nil {
		return nil, err
	}

	return &me, nil
}

// Logout ends the broker session. The broker clears the cookie whether or
// not a session existed.
func (c *SDKClient) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if err != nil {
		return err
	}

	var status StatusResponse
	return decodeJSON(resp, &status, http.StatusOK)
}

func (c *SDKClient) redirect(ctx context.Context, path string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		// decodeJSON turns error bodies into an *APIError.
		var ignored map[string]any
		if err := decodeJSON(resp, &ignored, http.StatusFound); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: status %d", ErrNoRedirect, resp.StatusCode)
	}
	defer drain(resp)

	loc, err := resp.Location()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoRedirect, err)
	}
	return loc.String(), nil
}
