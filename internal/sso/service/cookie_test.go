package service

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zwj1kor/Agentic-sso/pkg/cryptox"
)

var testCookieSecret = bytes.Repeat([]byte("k"), 32)

func newTestCodec(t *testing.T, secret []byte, name string) *CookieCodec {
	t.Helper()
	c, err := NewCookieCodec(secret, name)
	require.NoError(t, err)
	return c
}

func TestCookieCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, testCookieSecret, "sso_session")
	for range 20 {
		id, err := cryptox.GenerateToken(cryptox.TokenSize256)
		require.NoError(t, err)

		v, err := c.Encode(id)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(v, "v1."))
		assert.NotContains(t, v, id)

		got, err := c.Decode(v)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestCookieCodec_EncodeIsRandomized(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, testCookieSecret, "sso_session")
	a, err := c.Encode("same-id")
	require.NoError(t, err)
	b, err := c.Encode("same-id")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCookieCodec_RejectsEveryBitFlip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, testCookieSecret, "sso_session")
	v, err := c.Encode("session-id-0123456789")
	require.NoError(t, err)

	raw := []byte(v)
	for i := range raw {
		for bit := range 8 {
			flipped := bytes.Clone(raw)
			flipped[i] ^= 1 << bit

			_, err := c.Decode(string(flipped))
			require.Error(t, err, "byte %d bit %d", i, bit)
			require.True(t, errors.Is(err, ErrCookieMalformed) || errors.Is(err, ErrCookieTampered),
				"byte %d bit %d: %v", i, bit, err)
		}
	}
}

func TestCookieCodec_Rejects(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t, testCookieSecret, "sso_session")
	v, err := c.Encode("session-id")
	require.NoError(t, err)

	tests := []struct {
		name  string
		codec *CookieCodec
		value string
		want  error
	}{
		{"empty", c, "", ErrCookieMalformed},
		{"no version", c, strings.TrimPrefix(v, "v1."), ErrCookieMalformed},
		{"future version", c, "v2." + strings.TrimPrefix(v, "v1."), ErrCookieMalformed},
		{"padded base64", c, v + "=", ErrCookieMalformed},
		{"standard alphabet", c, "v1.ab+/cd", ErrCookieMalformed},
		{"too short", c, "v1.AAAA", ErrCookieMalformed},
		{"other secret", newTestCodec(t, bytes.Repeat([]byte("x"), 32), "sso_session"), v, ErrCookieTampered},
		{"other cookie name", newTestCodec(t, testCookieSecret, "other"), v, ErrCookieTampered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Decode(tt.value)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewCookieCodec_ShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCookieCodec([]byte("short"), "sso_session")
	require.ErrorIs(t, err, cryptox.ErrShortSecret)
}
