// Package token seals an (address, uid) pair into an opaque bearer string and
// opens it again. Tokens carry no server-side state.
package token

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hossein1376/walletauth/enigma"
)

const separator = ","

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidTokenFormat = errors.New("invalid token format")
)

type Codec struct {
	cipher enigma.Cipher
}

func NewCodec(c enigma.Cipher) *Codec {
	return &Codec{cipher: c}
}

// Encode returns hex(encrypt("<address>,<uid>")).
func (c *Codec) Encode(address, uid string) (string, error) {
	if strings.Contains(address, separator) || strings.Contains(uid, separator) {
		return "", fmt.Errorf("%w: fields must not contain %q", ErrInvalidTokenFormat, separator)
	}
	sealed, err := c.cipher.Encrypt([]byte(address + separator + uid))
	if err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	return hex.EncodeToString(sealed), nil
}

// Decode opens a token. Any decoding or decryption failure is reported as
// ErrInvalidToken without further detail; a plaintext that is not exactly two
// comma separated parts is ErrInvalidTokenFormat.
func (c *Codec) Decode(token string) (address, uid string, err error) {
	sealed, err := hex.DecodeString(token)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	plain, err := c.cipher.Decrypt(sealed)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	parts := strings.Split(string(plain), separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidTokenFormat
	}
	return parts[0], parts[1], nil
}
