package jwtx

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrMissingKID = errors.New("jwtx: missing kid")
	ErrUnknownKID = errors.New("jwtx: unknown kid")
	ErrKeyType    = errors.New("jwtx: key type does not match alg")
	ErrInvalidSig = errors.New("jwtx: invalid signature")

	ErrInvalidClaims = errors.New("jwtx: invalid claims")
	ErrIssuer        = errors.New("jwtx: issuer mismatch")
	ErrAudience      = errors.New("jwtx: audience mismatch")
	ErrNonce         = errors.New("jwtx: nonce mismatch")
	ErrNotYetValid   = errors.New("jwtx: token not yet valid")
	ErrExpired       = errors.New("jwtx: token expired")
)

// AllowedAlgs are the only signature algorithms accepted for identity tokens.
var AllowedAlgs = []string{"RS256", "ES256", "EdDSA"}

// DefaultClockSkew is the tolerance applied to exp, iat and nbf.
const DefaultClockSkew = 60 * time.Second

// KeySource supplies the provider's signing keys. RefreshSigningKeys is
// called at most once per validation, when a token names an unknown kid.
type KeySource interface {
	SigningKeys(ctx context.Context) (*KeySet, error)
	RefreshSigningKeys(ctx context.Context) (*KeySet, error)
}

// StaticKeys is a KeySource over a fixed KeySet.
type StaticKeys struct{ Keys *KeySet }

func (s StaticKeys) SigningKeys(context.Context) (*KeySet, error)        { return s.Keys, nil }
func (s StaticKeys) RefreshSigningKeys(context.Context) (*KeySet, error) { return s.Keys, nil }

type ValidatorConfig struct {
	Issuer    string
	ClientID  string
	ClockSkew time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// IDTokenValidator verifies OpenID Connect identity tokens.
type IDTokenValidator struct {
	keys   KeySource
	cfg    ValidatorConfig
	parser *jwt.Parser
}

func NewIDTokenValidator(keys KeySource, cfg ValidatorConfig) *IDTokenValidator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &IDTokenValidator{
		keys: keys,
		cfg:  cfg,
		// Claims are checked by hand afterwards so the failure order is fixed.
		parser: jwt.NewParser(
			jwt.WithValidMethods(AllowedAlgs),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Validate checks, in order: signature, issuer, audience, expiry and
// issued-at, and nonce. The first failing check decides the error.
func (v *IDTokenValidator) Validate(ctx context.Context, raw, expectedNonce string) (*IDClaims, error) {
	keys, err := v.keys.SigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: signing keys unavailable: %w", ErrInvalidSig, err)
	}

	claims, err := v.verify(raw, keys)
	if errors.Is(err, ErrUnknownKID) {
		// The provider may have rotated keys since the last fetch.
		keys, err = v.keys.RefreshSigningKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: refresh signing keys: %w", ErrInvalidSig, err)
		}
		claims, err = v.verify(raw, keys)
	}
	if err != nil {
		return nil, err
	}

	if err := claims.ValidateIssuer(v.cfg.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.cfg.ClientID); err != nil {
		return nil, err
	}
	if err := claims.ValidateTimes(v.cfg.Now(), v.cfg.ClockSkew); err != nil {
		return nil, err
	}
	if err := claims.ValidateNonce(expectedNonce); err != nil {
		return nil, err
	}

	return claims, nil
}

func (v *IDTokenValidator) verify(raw string, keys *KeySet) (*IDClaims, error) {
	claims := &IDClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKID
		}
		pub, err := keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		if !keyMatchesAlg(pub, t.Method.Alg()) {
			return nil, ErrKeyType
		}
		return pub, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownKID):
		return nil, fmt.Errorf("%w: %w", ErrInvalidSig, ErrUnknownKID)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %w", ErrInvalidSig, ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidSig, err)
	}

	raws, err := rawClaims(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSig, err)
	}
	claims.Raw = raws
	return claims, nil
}

func keyMatchesAlg(pub any, alg string) bool {
	switch pub.(type) {
	case *rsa.PublicKey:
		return alg == "RS256"
	case *ecdsa.PublicKey:
		return alg == "ES256"
	case ed25519.PublicKey:
		return alg == "EdDSA"
	default:
		return false
	}
}

// rawClaims decodes the payload segment of an already verified token.
func rawClaims(raw string) (map[string]any, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return out, nil
}
