package enigma

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize
)

var (
	ErrInvalidPadding = errors.New("invalid padding")
)

// CBC is AES-256-CBC with PKCS#7 padding.
//
// With a fixed IV, equal plaintexts produce equal ciphertexts, which is what
// existing tokens were minted with. Otherwise a random IV is generated per
// message and prepended to the output.
type CBC struct {
	block   cipher.Block
	iv      []byte
	fixedIV bool
}

func NewCBC(key, iv []byte, fixedIV bool) (*CBC, error) {
	if l := len(key); l != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, l)
	}
	if l := len(iv); l != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, l)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating aes cipher: %w", err)
	}

	return &CBC{block: block, iv: bytes.Clone(iv), fixedIV: fixedIV}, nil
}

func (c *CBC) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pad(plaintext)
	if c.fixedIV {
		out := make([]byte, len(padded))
		cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
		return out, nil
	}

	out := make([]byte, IVSize+len(padded))
	iv := out[:IVSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[IVSize:], padded)

	return out, nil
}

func (c *CBC) Decrypt(encrypted []byte) ([]byte, error) {
	iv := c.iv
	if !c.fixedIV {
		if len(encrypted) < IVSize {
			return nil, ErrInvalidCiphertext
		}
		iv, encrypted = encrypted[:IVSize], encrypted[IVSize:]
	}
	if len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return nil, ErrInvalidCiphertext
	}

	out := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, encrypted)

	return unpad(out)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
