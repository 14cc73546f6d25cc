package cryptox_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zwj1kor/Agentic-sso/pkg/cryptox"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestAEAD(t *testing.T, secret []byte, info string) *cryptox.AEAD {
	t.Helper()
	key, err := cryptox.DeriveKey(secret, info, 32)
	require.NoError(t, err)
	a, err := cryptox.NewAEAD(key)
	require.NoError(t, err)
	return a
}

func TestDeriveKey(t *testing.T) {
	k1, err := cryptox.DeriveKey(testSecret, "purpose a", 32)
	require.NoError(t, err)
	k2, err := cryptox.DeriveKey(testSecret, "purpose a", 32)
	require.NoError(t, err)
	k3, err := cryptox.DeriveKey(testSecret, "purpose b", 32)
	require.NoError(t, err)

	require.Len(t, k1, 32)
	require.Equal(t, k1, k2, "derivation should be deterministic")
	require.NotEqual(t, k1, k3, "info should separate keys")
}

func TestDeriveKeyRejectsShortSecret(t *testing.T) {
	_, err := cryptox.DeriveKey([]byte("too-short"), "x", 32)
	require.ErrorIs(t, err, cryptox.ErrShortSecret)
}

func TestSealOpen(t *testing.T) {
	a := newTestAEAD(t, testSecret, "test")
	msg := []byte("session-identifier")

	sealed, err := a.Seal(msg, []byte("aad"))
	require.NoError(t, err)
	require.Len(t, sealed, len(msg)+a.Overhead())
	require.False(t, bytes.Contains(sealed, msg))

	opened, err := a.Open(sealed, []byte("aad"))
	require.NoError(t, err)
	require.Equal(t, msg, opened)

	// Random nonce makes every seal distinct.
	sealed2, err := a.Seal(msg, []byte("aad"))
	require.NoError(t, err)
	require.NotEqual(t, sealed, sealed2)
}

func TestOpenRejects(t *testing.T) {
	a := newTestAEAD(t, testSecret, "test")
	sealed, err := a.Seal([]byte("payload"), []byte("aad"))
	require.NoError(t, err)

	t.Run("wrong aad", func(t *testing.T) {
		_, err := a.Open(sealed, []byte("other"))
		require.ErrorIs(t, err, cryptox.ErrDecrypt)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := newTestAEAD(t, testSecret, "other")
		_, err := other.Open(sealed, []byte("aad"))
		require.ErrorIs(t, err, cryptox.ErrDecrypt)
	})

	t.Run("flipped bit", func(t *testing.T) {
		for i := range sealed {
			tampered := bytes.Clone(sealed)
			tampered[i] ^= 0x01
			_, err := a.Open(tampered, []byte("aad"))
			require.ErrorIs(t, err, cryptox.ErrDecrypt, "byte %d", i)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := a.Open(sealed[:a.Overhead()-1], []byte("aad"))
		require.ErrorIs(t, err, cryptox.ErrShortInput)
	})
}
