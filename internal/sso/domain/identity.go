package domain

import (
	"time"

	"github.com/zwj1kor/Agentic-sso/pkg/jwtx"
)

// IdentityClaims is the validated identity a session carries. It is built
// only from identity tokens that passed every validation check.
type IdentityClaims struct {
	Subject   string         `json:"sub"`
	Issuer    string         `json:"iss"`
	Audience  []string       `json:"aud"`
	ExpiresAt time.Time      `json:"exp"`
	IssuedAt  time.Time      `json:"iat"`
	Nonce     string         `json:"nonce"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email,omitempty"`
	TenantID  string         `json:"tid,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// IdentityFromToken projects validated token claims. Email falls back to
// preferred_username then upn, and the subject to oid, matching what
// Microsoft identity platform tokens actually carry.
func IdentityFromToken(c *jwtx.IDClaims) IdentityClaims {
	id := IdentityClaims{
		Subject:  c.StableSubject(),
		Issuer:   c.Issuer,
		Audience: []string(c.Audience),
		Nonce:    c.Nonce,
		Name:     c.Name,
		Email:    c.DisplayEmail(),
		TenantID: c.TenantID,
		Raw:      c.Raw,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.UTC()
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.UTC()
	}
	return id
}
