// Package oidctest runs a disposable OpenID Connect identity provider for
// tests and local development. It serves discovery, a JWKS, an
// authorization endpoint that approves every request, and a token endpoint
// that enforces client credentials and PKCE before minting identity tokens.
package oidctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/zwj1kor/Agentic-sso/pkg/cryptox"
	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
	"golang.org/x/oauth2"
)

const (
	DefaultClientID     = "oidctest-client"
	DefaultClientSecret = "oidctest-secret"
	DefaultTenantID     = "oidctest-tenant"
)

// User is the identity the provider signs in.
type User struct {
	Subject string
	Name    string
	Email   string
}

var DefaultUser = User{
	Subject: "user-0001",
	Name:    "Ada Lovelace",
	Email:   "ada@example.com",
}

type authRequest struct {
	clientID    string
	redirectURI string
	nonce       string
	challenge   string
}

// Provider is an in-process identity provider backed by httptest.
type Provider struct {
	srv *httptest.Server

	mu           sync.Mutex
	clientID     string
	clientSecret string
	user         User
	signers      []*jwtx.Signer // published keys, the last one signs
	codes        map[string]authRequest
	claimsHook   func(*jwtx.IDClaims)
	authErr      *oauth2Error
	tokenErr     *tokenFailure
	omitIDToken  bool
	jwksDown     bool
	tokenTTL     time.Duration
	jwksHits     int
	tokenHits    int
}

type oauth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

type tokenFailure struct {
	status int
	body   oauth2Error
}

// Start launches a provider with an RS256 signing key and registers its
// shutdown with t.
func Start(t testing.TB) *Provider {
	t.Helper()

	p := &Provider{
		clientID:     DefaultClientID,
		clientSecret: DefaultClientSecret,
		user:         DefaultUser,
		codes:        make(map[string]authRequest),
		tokenTTL:     time.Hour,
	}
	_, err := p.RotateKey("RS256")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("GET /authorize", p.handleAuthorize)
	mux.HandleFunc("POST /token", p.handleToken)
	mux.HandleFunc("GET /keys", p.handleKeys)
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *Provider) Close() { p.srv.Close() }

// Issuer is the provider's base URL, which is also its issuer identifier.
func (p *Provider) Issuer() string   { return p.srv.URL }
func (p *Provider) AuthURL() string  { return p.srv.URL + "/authorize" }
func (p *Provider) TokenURL() string { return p.srv.URL + "/token" }
func (p *Provider) JWKSURL() string  { return p.srv.URL + "/keys" }

func (p *Provider) ClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID
}

func (p *Provider) ClientSecret() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientSecret
}

// SetClient replaces the registered client credentials.
func (p *Provider) SetClient(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID, p.clientSecret = clientID, clientSecret
}

func (p *Provider) SetUser(u User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// SetClaimsHook lets a test rewrite the claims of every identity token
// before it is signed. Pass nil to clear it.
func (p *Provider) SetClaimsHook(hook func(*jwtx.IDClaims)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimsHook = hook
}

// DenyAuthorization makes the authorization endpoint redirect back with an
// error response instead of a code. An empty code restores approval.
func (p *Provider) DenyAuthorization(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if code == "" {
		p.authErr = nil
		return
	}
	p.authErr = &oauth2Error{Code: code, Description: description}
}

// FailToken makes the token endpoint answer every request with status and
// an OAuth2 error body. A zero status restores normal behavior.
func (p *Provider) FailToken(status int, code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == 0 {
		p.tokenErr = nil
		return
	}
	p.tokenErr = &tokenFailure{status: status, body: oauth2Error{Code: code, Description: description}}
}

// OmitIDToken makes the token endpoint leave out the id_token member.
func (p *Provider) OmitIDToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = omit
}

// FailJWKS makes the keys endpoint answer 503 while down is true.
func (p *Provider) FailJWKS(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwksDown = down
}

// RotateKey generates a key for alg, publishes it and makes it the signing
// key. Previously published keys stay in the JWKS until RetireOldKeys.
func (p *Provider) RotateKey(alg string) (string, error) {
	pemKey, err := cryptox.GenerateSigningKey(alg)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	kid := fmt.Sprintf("oidctest-%d", len(p.signers)+1)
	s, err := jwtx.NewSigner(kid, pemKey)
	if err != nil {
		return "", err
	}
	p.signers = append(p.signers, s)
	return kid, nil
}

// RetireOldKeys stops publishing every key but the current one.
func (p *Provider) RetireOldKeys() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signers = p.signers[len(p.signers)-1:]
}

// CurrentKID is the kid of the signing key.
func (p *Provider) CurrentKID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current().KID()
}

// JWKSRequests counts fetches of the key set.
func (p *Provider) JWKSRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jwksHits
}

// TokenRequests counts calls to the token endpoint.
func (p *Provider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenHits
}

// Claims returns the claims the provider would issue for nonce right now.
func (p *Provider) Claims(nonce string) *jwtx.IDClaims {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claims(p.clientID, nonce)
}

// Sign signs claims with the current key.
func (p *Provider) Sign(claims jwt.Claims) (string, error) {
	p.mu.Lock()
	s := p.current()
	p.mu.Unlock()
	return s.Sign(claims)
}

// Authorize follows an authorization URL the way a browser would, without
// leaving the provider, and returns the query the provider redirected
// back with.
func (p *Provider) Authorize(authURL string) (url.Values, error) {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		Timeout:       5 * time.Second,
	}
	resp, err := client.Get(authURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("oidctest: authorize returned %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		return nil, err
	}
	return loc.Query(), nil
}

func (p *Provider) current() *jwtx.Signer { return p.signers[len(p.signers)-1] }

func (p *Provider) claims(audience, nonce string) *jwtx.IDClaims {
	now := time.Now()
	c := &jwtx.IDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.srv.URL,
			Subject:   p.user.Subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		},
		Nonce:    nonce,
		Name:     p.user.Name,
		Email:    p.user.Email,
		TenantID: DefaultTenantID,
	}
	if p.claimsHook != nil {
		p.claimsHook(c)
	}
	return c
}

func (p *Provider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.srv.URL,
		"authorization_endpoint":                p.AuthURL(),
		"token_endpoint":                        p.TokenURL(),
		"jwks_uri":                              p.JWKSURL(),
		"response_types_supported":              []string{"code"},
		"response_modes_supported":              []string{"query"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": jwtx.AllowedAlgs,
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *Provider) handleKeys(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.jwksHits++
	if p.jwksDown {
		p.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, oauth2Error{Code: "temporarily_unavailable"})
		return
	}
	set := jwtx.JWKS{Keys: make([]jwtx.JWK, 0, len(p.signers))}
	for _, s := range p.signers {
		set.Keys = append(set.Keys, s.PublicJWK())
	}
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, set)
}

func (p *Provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	redirectURI, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || !redirectURI.IsAbs() {
		writeJSON(w, http.StatusBadRequest, oauth2Error{Code: "invalid_request", Description: "redirect_uri"})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	back := redirectURI.Query()
	if state := q.Get("state"); state != "" {
		back.Set("state", state)
	}

	switch {
	case p.authErr != nil:
		back.Set("error", p.authErr.Code)
		if p.authErr.Description != "" {
			back.Set("error_description", p.authErr.Description)
		}
	case q.Get("response_type") != "code", q.Get("client_id") != p.clientID:
		back.Set("error", "unauthorized_client")
	case q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "":
		back.Set("error", "invalid_request")
		back.Set("error_description", "PKCE S256 required")
	default:
		code, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, oauth2Error{Code: "server_error"})
			return
		}
		p.codes[code] = authRequest{
			clientID:    q.Get("client_id"),
			redirectURI: q.Get("redirect_uri"),
			nonce:       q.Get("nonce"),
			challenge:   q.Get("code_challenge"),
		}
		back.Set("code", code)
	}

	redirectURI.RawQuery = back.Encode()
	http.Redirect(w, r, redirectURI.String(), http.StatusFound)
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, oauth2Error{Code: "invalid_request"})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenHits++

	if p.tokenErr != nil {
		writeJSON(w, p.tokenErr.status, p.tokenErr.body)
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != p.clientID || clientSecret != p.clientSecret {
		writeJSON(w, http.StatusUnauthorized, oauth2Error{Code: "invalid_client"})
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		writeJSON(w, http.StatusBadRequest, oauth2Error{Code: "unsupported_grant_type"})
		return
	}

	code := r.PostForm.Get("code")
	req, found := p.codes[code]
	delete(p.codes, code)
	switch {
	case !found, req.clientID != clientID:
		writeJSON(w, http.StatusBadRequest, oauth2Error{Code: "invalid_grant", Description: "unknown code"})
		return
	case req.redirectURI != r.PostForm.Get("redirect_uri"):
		writeJSON(w, http.StatusBadRequest, oauth2Error{Code: "invalid_grant", Description: "redirect_uri mismatch"})
		return
	case oauth2.S256ChallengeFromVerifier(r.PostForm.Get("code_verifier")) != req.challenge:
		writeJSON(w, http.StatusBadRequest, oauth2Error{Code: "invalid_grant", Description: "code_verifier mismatch"})
		return
	}

	idToken, err := p.current().Sign(p.claims(clientID, req.nonce))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, oauth2Error{Code: "server_error"})
		return
	}
	access, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, oauth2Error{Code: "server_error"})
		return
	}

	reply := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(p.tokenTTL.Seconds()),
		"scope":        "openid profile email",
	}
	if !p.omitIDToken {
		reply["id_token"] = idToken
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, reply)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
