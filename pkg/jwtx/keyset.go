package jwtx

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds the provider's public signing keys indexed by kid.
type KeySet struct {
	mu        sync.RWMutex
	pub       map[string]any // kid: *rsa.PublicKey | *ecdsa.PublicKey | ed25519.PublicKey
	fetchedAt time.Time
}

func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]any)}
}

// Add parses j and registers it under its kid.
func (k *KeySet) Add(j JWK) error {
	if j.Kid == "" {
		return fmt.Errorf("%w: missing kid", ErrUnsupportedKey)
	}
	key, err := j.PublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	return nil
}

// Get returns the public key for kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// IsReady reports whether at least one key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

func (k *KeySet) KIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return slices.Sorted(maps.Keys(k.pub))
}

// FetchedAt is when the set was last replaced from a JWKS document.
func (k *KeySet) FetchedAt() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.fetchedAt
}

// ResetFromJWKS swaps in the keys of a freshly fetched JWKS. Keys that are
// not signature keys or use an unsupported type are skipped, since
// providers routinely publish more than this verifier understands. An error
// is returned only when nothing usable remains, in which case the previous
// keys are kept.
func (k *KeySet) ResetFromJWKS(jwks JWKS, fetchedAt time.Time) error {
	next := make(map[string]any, len(jwks.Keys))
	var lastErr error
	for _, j := range jwks.Keys {
		if j.Kid == "" || (j.Use != "" && j.Use != "sig") {
			continue
		}
		key, err := j.PublicKey()
		if err != nil {
			lastErr = err
			continue
		}
		next[j.Kid] = key
	}

	if len(next) == 0 {
		if lastErr != nil {
			return fmt.Errorf("jwtx: no usable signing keys: %w", lastErr)
		}
		return fmt.Errorf("jwtx: no usable signing keys")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = next
	k.fetchedAt = fetchedAt
	return nil
}
