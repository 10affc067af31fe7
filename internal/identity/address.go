package identity

import (
	"bytes"
	"fmt"

	"filippo.io/edwards25519/field"
	"github.com/mr-tron/base58"
	"github.com/oasisprotocol/curve25519-voi/curve"
	"golang.org/x/crypto/ed25519"
)

const AddressSize = ed25519.PublicKeySize

// Address is a validated wallet public key. The zero value is not a valid
// address; obtain one through ParseAddress or AddressFromPublicKey.
type Address struct {
	key  [AddressSize]byte
	text string
}

// ParseAddress decodes a base58 address and checks that it is a point on the
// ed25519 curve. The returned error wraps one of ErrEmptyAddress,
// ErrMalformedAddress, ErrAddressLength or ErrNotOnCurve.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, ErrEmptyAddress
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrMalformedAddress, err)
	}
	return addressFromBytes(raw)
}

// AddressFromPublicKey validates a raw ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) (Address, error) {
	return addressFromBytes(pub)
}

func addressFromBytes(raw []byte) (Address, error) {
	if l := len(raw); l != AddressSize {
		return Address{}, fmt.Errorf("%w: got %d bytes, want %d", ErrAddressLength, l, AddressSize)
	}
	if !IsOnCurve(raw) {
		return Address{}, ErrNotOnCurve
	}
	var a Address
	copy(a.key[:], raw)
	a.text = base58.Encode(raw)
	return a, nil
}

// IsOnCurve reports whether b is the canonical compressed encoding of an
// ed25519 curve point. A y coordinate at or above the field prime is rejected
// even when its reduction is on the curve.
func IsOnCurve(b []byte) bool {
	if len(b) != AddressSize {
		return false
	}
	y := bytes.Clone(b)
	y[AddressSize-1] &= 0x7f
	fe, err := new(field.Element).SetBytes(y)
	if err != nil || !bytes.Equal(fe.Bytes(), y) {
		return false
	}
	var compressed curve.CompressedEdwardsY
	copy(compressed[:], b)
	_, err = curve.NewEdwardsPoint().SetCompressedY(&compressed)
	return err == nil
}

func (a Address) String() string {
	return a.text
}

func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a.key[:])
	return b
}

func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a.Bytes())
}

func (a Address) Equal(b Address) bool {
	return bytes.Equal(a.key[:], b.key[:])
}

func (a Address) IsZero() bool {
	return a.text == ""
}
