package jwtx

import (
	"crypto/subtle"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDClaims are the OpenID Connect identity-token claims the broker relies
// on. Microsoft identity platform tokens may omit email, so the upn and
// preferred_username fallbacks are decoded as well.
type IDClaims struct {
	jwt.RegisteredClaims

	Nonce             string `json:"nonce,omitempty"`
	AuthorizedParty   string `json:"azp,omitempty"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	UPN               string `json:"upn,omitempty"`
	ObjectID          string `json:"oid,omitempty"`
	TenantID          string `json:"tid,omitempty"`

	// Raw holds every claim of the token payload.
	Raw map[string]any `json:"-"`
}

// DisplayEmail returns email, then preferred_username, then upn.
func (c *IDClaims) DisplayEmail() string {
	switch {
	case c.Email != "":
		return c.Email
	case c.PreferredUsername != "":
		return c.PreferredUsername
	default:
		return c.UPN
	}
}

// StableSubject returns sub, falling back to oid.
func (c *IDClaims) StableSubject() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.ObjectID
}

func (c *IDClaims) ValidateIssuer(expected string) error {
	if c.Issuer != expected {
		return fmt.Errorf("%w: %w", ErrInvalidClaims, ErrIssuer)
	}
	return nil
}

// ValidateAudience requires clientID among the audiences. With more than
// one audience the azp claim must name clientID too; a present azp must
// always match.
func (c *IDClaims) ValidateAudience(clientID string) error {
	if !slices.Contains(c.Audience, clientID) {
		return fmt.Errorf("%w: %w", ErrInvalidClaims, ErrAudience)
	}
	if len(c.Audience) > 1 && c.AuthorizedParty == "" {
		return fmt.Errorf("%w: %w: azp required for multiple audiences", ErrInvalidClaims, ErrAudience)
	}
	if c.AuthorizedParty != "" && c.AuthorizedParty != clientID {
		return fmt.Errorf("%w: %w: azp mismatch", ErrInvalidClaims, ErrAudience)
	}
	return nil
}

// ValidateTimes checks exp and iat (both required) and nbf when present,
// tolerating skew in either direction.
func (c *IDClaims) ValidateTimes(now time.Time, skew time.Duration) error {
	if c.ExpiresAt == nil {
		return fmt.Errorf("%w: missing exp", ErrInvalidClaims)
	}
	if c.IssuedAt == nil {
		return fmt.Errorf("%w: missing iat", ErrInvalidClaims)
	}
	if !now.Before(c.ExpiresAt.Add(skew)) {
		return ErrExpired
	}
	if c.IssuedAt.After(now.Add(skew)) {
		return fmt.Errorf("%w: %w: iat in the future", ErrInvalidClaims, ErrNotYetValid)
	}
	if c.NotBefore != nil && c.NotBefore.After(now.Add(skew)) {
		return fmt.Errorf("%w: %w", ErrInvalidClaims, ErrNotYetValid)
	}
	return nil
}

// ValidateNonce compares in constant time.
func (c *IDClaims) ValidateNonce(expected string) error {
	if expected == "" || c.Nonce == "" ||
		subtle.ConstantTimeCompare([]byte(c.Nonce), []byte(expected)) != 1 {
		return fmt.Errorf("%w: %w", ErrInvalidClaims, ErrNonce)
	}
	return nil
}
