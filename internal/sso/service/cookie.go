package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/zwj1kor/Agentic-sso/pkg/cryptox"
)

var (
	ErrCookieMalformed = errors.New("cookie malformed")
	ErrCookieTampered  = errors.New("cookie tampered")
)

const (
	cookieVersion = "v1."
	cookieKeyInfo = "sso-cookie v1"
)

var cookieEncoding = base64.RawURLEncoding.Strict()

// CookieCodec seals session identifiers into cookie values. The value is
// "v1." followed by base64url(nonce || ciphertext || tag); the cookie name
// is bound in as additional data so a value cannot move between cookies.
type CookieCodec struct {
	name string
	aead *cryptox.AEAD
}

func NewCookieCodec(secret []byte, cookieName string) (*CookieCodec, error) {
	if cookieName == "" {
		return nil, errors.New("cookie name is required")
	}
	key, err := cryptox.DeriveKey(secret, cookieKeyInfo, 32)
	if err != nil {
		return nil, err
	}
	aead, err := cryptox.NewAEAD(key)
	if err != nil {
		return nil, err
	}
	return &CookieCodec{name: cookieName, aead: aead}, nil
}

func (c *CookieCodec) Name() string { return c.name }

func (c *CookieCodec) Encode(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("empty session id")
	}
	sealed, err := c.aead.Seal([]byte(sessionID), []byte(c.name))
	if err != nil {
		return "", fmt.Errorf("seal cookie: %w", err)
	}
	return cookieVersion + cookieEncoding.EncodeToString(sealed), nil
}

// Decode returns the session identifier sealed in value.
func (c *CookieCodec) Decode(value string) (string, error) {
	payload, ok := strings.CutPrefix(value, cookieVersion)
	if !ok {
		return "", ErrCookieMalformed
	}
	sealed, err := cookieEncoding.DecodeString(payload)
	if err != nil || len(sealed) <= c.aead.Overhead() {
		return "", ErrCookieMalformed
	}

	id, err := c.aead.Open(sealed, []byte(c.name))
	if err != nil {
		return "", ErrCookieTampered
	}
	return string(id), nil
}
