package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zwj1kor/Agentic-sso/pkg/cryptox"
)

// Signer issues JWS compact tokens. The broker itself never signs; signers
// back the in-process identity provider used by tests and local development.
type Signer struct {
	kid    string
	method jwt.SigningMethod
	key    any
	jwk    JWK
}

// NewSigner loads a PEM private key and picks the algorithm from its type:
// RSA keys sign RS256, P-256 keys ES256 and Ed25519 keys EdDSA.
func NewSigner(kid string, pemKey []byte) (*Signer, error) {
	priv, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: load signing key: %w", err)
	}

	s := &Signer{kid: kid, key: priv}
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		s.method = jwt.SigningMethodRS256
		s.jwk = NewRSAJWK(kid, &k.PublicKey)
	case *ecdsa.PrivateKey:
		if k.Curve.Params().Name != "P-256" {
			return nil, fmt.Errorf("jwtx: expected P-256 curve, got %s", k.Curve.Params().Name)
		}
		s.method = jwt.SigningMethodES256
		s.jwk = NewES256JWK(kid, &k.PublicKey)
	case ed25519.PrivateKey:
		s.method = jwt.SigningMethodEdDSA
		s.jwk = NewEd25519JWK(kid, k.Public().(ed25519.PublicKey))
	default:
		return nil, errors.New("jwtx: unsupported private key type")
	}
	return s, nil
}

func (s *Signer) Alg() string { return s.method.Alg() }
func (s *Signer) KID() string { return s.kid }

// PublicJWK is the key to publish in the JWKS.
func (s *Signer) PublicJWK() JWK { return s.jwk }

// Sign serializes claims and signs them with the kid header set.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}
