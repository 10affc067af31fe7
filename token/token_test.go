package token_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hossein1376/walletauth/enigma"
	"github.com/hossein1376/walletauth/token"
)

const (
	address = "5oNDL3swdJJF1g9DzJiZ4ynHXgszjAEpUkxVYejchzrY"
	uid     = "e114ba7a234f9094"
)

var (
	key = mustHex("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	iv  = mustHex("0f0e0d0c0b0a09080706050403020100")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func ciphers(t *testing.T) map[string]enigma.Cipher {
	t.Helper()
	fixed, err := enigma.NewCBC(key, iv, true)
	require.NoError(t, err)
	random, err := enigma.NewCBC(key, iv, false)
	require.NoError(t, err)
	aead, err := enigma.NewEnigma(key, []byte("salt"))
	require.NoError(t, err)

	return map[string]enigma.Cipher{
		"cbc fixed iv":       fixed,
		"cbc random iv":      random,
		"xchacha20-poly1305": aead,
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	for name, c := range ciphers(t) {
		t.Run(name, func(t *testing.T) {
			a := require.New(t)
			codec := token.NewCodec(c)

			tok, err := codec.Encode(address, uid)
			a.NoError(err)
			a.NotContains(tok, address)
			_, err = hex.DecodeString(tok)
			a.NoError(err)

			gotAddr, gotUID, err := codec.Decode(tok)
			a.NoError(err)
			a.Equal(address, gotAddr)
			a.Equal(uid, gotUID)
		})
	}
}

func TestCodec_FixedIVCompatibility(t *testing.T) {
	a := require.New(t)
	c, err := enigma.NewCBC(key, iv, true)
	a.NoError(err)
	codec := token.NewCodec(c)

	tok, err := codec.Encode(address, uid)
	a.NoError(err)
	a.Equal(
		"99bd6298a94362e4069515513be6d910185ab783869b464ecc6a46b6c7575197"+
			"359ed39b03de6e8db5825449373c988295e79df4832e9e1f6f17f54fd9c05933",
		tok,
	)
}

func TestCodec_Decode(t *testing.T) {
	c, err := enigma.NewCBC(key, iv, true)
	require.NoError(t, err)
	codec := token.NewCodec(c)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"not hex", "invalid_token", token.ErrInvalidToken},
		{"empty", "", token.ErrInvalidToken},
		{"odd length", "abc", token.ErrInvalidToken},
		{"not a block multiple", "deadbeef", token.ErrInvalidToken},
		// Ciphertexts of "a,b,c" and "nocomma" under the test key.
		{"three parts", "e3cf2eb2d512caddea762f20cfd0f522", token.ErrInvalidTokenFormat},
		{"one part", "a2ba09cc146545f1f78807d91c47f8aa", token.ErrInvalidTokenFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := codec.Decode(tc.token)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCodec_EncodeRejectsSeparator(t *testing.T) {
	c, err := enigma.NewCBC(key, iv, false)
	require.NoError(t, err)

	_, err = token.NewCodec(c).Encode("a,b", uid)
	require.ErrorIs(t, err, token.ErrInvalidTokenFormat)
}
