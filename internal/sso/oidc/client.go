// Package oidc talks to the upstream identity provider: it resolves the
// provider's endpoints, builds authorization requests, redeems codes and
// keeps a cached copy of the provider's signing keys.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrExchangeFailed = errors.New("oidc: code exchange failed")
	ErrDiscovery      = errors.New("oidc: discovery failed")
	ErrJWKSFetch      = errors.New("oidc: signing key fetch failed")
)

const (
	DefaultHTTPTimeout        = 10 * time.Second
	DefaultMinRefreshInterval = 30 * time.Second
	DefaultKeysMaxAge         = 24 * time.Hour
)

var DefaultScopes = []string{gooidc.ScopeOpenID, "profile", "email"}

// Config describes the relying party registration and how to reach the
// provider. When Discovery is false AuthURL, TokenURL and JWKSURL must be
// set explicitly.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	Discovery bool
	AuthURL   string
	TokenURL  string
	JWKSURL   string

	// HTTPClient is used for every provider call. It defaults to a client
	// with DefaultHTTPTimeout.
	HTTPClient *http.Client

	// MinRefreshInterval bounds how often an unknown kid may trigger a
	// JWKS fetch.
	MinRefreshInterval time.Duration

	// KeysMaxAge is how long cached keys are used before a routine refetch.
	KeysMaxAge time.Duration

	Now func() time.Time
}

// Endpoints are the provider URLs the client resolved.
type Endpoints struct {
	Issuer   string
	AuthURL  string
	TokenURL string
	JWKSURL  string
}

// TokenResponse is the token endpoint reply.
type TokenResponse struct {
	AccessToken string
	IDToken     string
	TokenType   string
	ExpiresIn   int64
}

type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	endpoints  Endpoints
	keys       *keyCache
}

// AzureEndpoints returns the Microsoft identity platform v2.0 endpoints of
// a tenant.
func AzureEndpoints(tenantID string) Endpoints {
	base := "https://login.microsoftonline.com/" + tenantID
	return Endpoints{
		Issuer:   base + "/v2.0",
		AuthURL:  base + "/oauth2/v2.0/authorize",
		TokenURL: base + "/oauth2/v2.0/token",
		JWKSURL:  base + "/discovery/v2.0/keys",
	}
}

// New resolves the provider endpoints. With discovery enabled this fetches
// the provider's metadata document, so ctx bounds that call.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc: issuer, client id and redirect url are required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ep := Endpoints{
		Issuer:   cfg.Issuer,
		AuthURL:  cfg.AuthURL,
		TokenURL: cfg.TokenURL,
		JWKSURL:  cfg.JWKSURL,
	}
	if cfg.Discovery {
		discovered, err := discover(ctx, cfg.HTTPClient, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		ep = discovered
	}
	if ep.AuthURL == "" || ep.TokenURL == "" || ep.JWKSURL == "" {
		return nil, errors.New("oidc: authorization, token and jwks urls are required without discovery")
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       withOpenID(cfg.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:  ep.AuthURL,
				TokenURL: ep.TokenURL,
				// Auto-detection retries a failed redemption with the other
				// style, which would present the code twice.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
		endpoints:  ep,
		keys:       newKeyCache(cfg.HTTPClient, ep.JWKSURL, cfg.MinRefreshInterval, cfg.KeysMaxAge, cfg.Now),
	}, nil
}

func discover(ctx context.Context, hc *http.Client, issuer string) (Endpoints, error) {
	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, hc), issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return Endpoints{}, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	ep := provider.Endpoint()
	return Endpoints{
		Issuer:   issuer,
		AuthURL:  ep.AuthURL,
		TokenURL: ep.TokenURL,
		JWKSURL:  meta.JWKSURL,
	}, nil
}

func withOpenID(scopes []string) []string {
	for _, s := range scopes {
		if s == gooidc.ScopeOpenID {
			return scopes
		}
	}
	return append([]string{gooidc.ScopeOpenID}, scopes...)
}

func (c *Client) Endpoints() Endpoints { return c.endpoints }

// AuthorizationURL builds the URL the user agent is sent to. It performs no
// I/O.
func (c *Client) AuthorizationURL(state, nonce, codeVerifier string) string {
	return c.oauth.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.S256ChallengeOption(codeVerifier),
	)
}

// Exchange redeems an authorization code. Every failure, including a reply
// without an id_token, wraps ErrExchangeFailed.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	if c.httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: provider replied %d %s: %s",
				ErrExchangeFailed, re.Response.StatusCode, re.ErrorCode, providerDetail(re))
		}
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("%w: no id_token in response", ErrExchangeFailed)
	}

	resp := &TokenResponse{
		AccessToken: tok.AccessToken,
		IDToken:     idToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
	}
	if resp.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return resp, nil
}

// providerDetail keeps the error description, or a bounded slice of the raw
// body when the provider sent none.
func providerDetail(re *oauth2.RetrieveError) string {
	if re.ErrorDescription != "" {
		return re.ErrorDescription
	}
	body := strings.TrimSpace(string(re.Body))
	if len(body) > 256 {
		body = body[:256]
	}
	return body
}
