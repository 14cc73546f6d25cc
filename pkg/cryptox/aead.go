package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSecretSize is the shortest input keying material DeriveKey accepts.
const MinSecretSize = 32

var (
	ErrShortSecret = errors.New("cryptox: secret must be at least 32 bytes")
	ErrShortInput  = errors.New("cryptox: sealed input too short")
	ErrDecrypt     = errors.New("cryptox: message authentication failed")
)

// DeriveKey expands secret into a size byte key with HKDF-SHA256. The info
// string binds the key to one purpose so the same secret can feed several
// independent keys.
func DeriveKey(secret []byte, info string, size int) ([]byte, error) {
	if len(secret) < MinSecretSize {
		return nil, ErrShortSecret
	}

	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("cryptox: derive key: %w", err)
	}
	return key, nil
}

// AEAD seals and opens short messages with AES-GCM. The random nonce is
// prepended to the ciphertext.
type AEAD struct {
	gcm cipher.AEAD
}

// NewAEAD builds an AES-GCM sealer. key must be 16, 24 or 32 bytes.
func NewAEAD(key []byte) (*AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &AEAD{gcm: gcm}, nil
}

// Overhead is the number of bytes Seal adds to the plaintext.
func (a *AEAD) Overhead() int {
	return a.gcm.NonceSize() + a.gcm.Overhead()
}

// Seal returns nonce || ciphertext || tag.
func (a *AEAD) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize(), a.gcm.NonceSize()+len(plaintext)+a.gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return a.gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts the output of Seal.
func (a *AEAD) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < a.Overhead() {
		return nil, ErrShortInput
	}

	ns := a.gcm.NonceSize()
	plaintext, err := a.gcm.Open(nil, sealed[:ns], sealed[ns:], aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
