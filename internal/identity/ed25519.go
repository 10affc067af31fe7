package identity

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ed25519"
)

// VerifyEd25519 checks a detached signature. Signatures of the wrong length
// are rejected without reaching the verifier.
func VerifyEd25519(pub ed25519.PublicKey, msg, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(pub, msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// Ed25519 is a wallet key pair. The service itself only ever sees public keys;
// private keys live in tooling and tests.
type Ed25519 struct {
	PublicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
}

func (e *Ed25519) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(e.privateKey, msg), nil
}

func (e *Ed25519) Address() Address {
	a, err := AddressFromPublicKey(e.PublicKey)
	if err != nil {
		panic(fmt.Errorf("generated public key is not a valid address: %w", err))
	}
	return a
}

func (e *Ed25519) MarshalPublicKey() []byte {
	b, err := x509.MarshalPKIXPublicKey(e.PublicKey)
	if err != nil {
		panic(fmt.Errorf("marshalling public key: %w", err))
	}
	return b
}

func (e *Ed25519) Save(path string) error {
	data, err := x509.MarshalPKCS8PrivateKey(e.privateKey)
	if err != nil {
		return fmt.Errorf("marshalling key: %w", err)
	}
	err = saveKey(data, privateKeyType, path)
	if err != nil {
		return fmt.Errorf("saving private key: %w", err)
	}

	return nil
}

func (e *Ed25519) Load(path string) error {
	data, err := readKeyData(path)
	if err != nil {
		return fmt.Errorf("loading private key: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}
	private, ok := key.(ed25519.PrivateKey)
	if !ok {
		return ErrInvalidKey
	}
	*e = newFromPrivate(private)

	return nil
}

// LoadEd25519 reads a key pair from disk. Files ending in .json are read as a
// Solana CLI keypair (a JSON array of the 64 private key bytes); anything else
// is read as a PKCS#8 PEM file.
func LoadEd25519(path string) (*Ed25519, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return loadKeypairJSON(path)
	}
	e := new(Ed25519)
	if err := e.Load(path); err != nil {
		return nil, err
	}
	return e, nil
}

func loadKeypairJSON(path string) (*Ed25519, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMissingFile
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("decoding keypair: %w", err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf(
			"%w: keypair has %d bytes, want %d",
			ErrInvalidKey, len(ints), ed25519.PrivateKeySize,
		)
	}
	raw = make([]byte, 0, len(ints))
	for _, v := range ints {
		if v < 0 || v > 0xFF {
			return nil, fmt.Errorf("%w: byte value %d out of range", ErrInvalidKey, v)
		}
		raw = append(raw, byte(v))
	}
	private := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	e := newFromPrivate(private)
	if !e.PublicKey.Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKey)
	}
	return &e, nil
}

func newFromPrivate(private ed25519.PrivateKey) Ed25519 {
	public, ok := private.Public().(ed25519.PublicKey)
	if !ok {
		panic("type assertion: public key is not of type ed25519.Key")
	}
	return Ed25519{privateKey: private, PublicKey: public}
}

func NewEd25519() (*Ed25519, error) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Ed25519{privateKey: private, PublicKey: public}, nil
}

// NewEd25519FromSeed deterministically derives a key pair from a 32 byte seed.
func NewEd25519FromSeed(seed []byte) (*Ed25519, error) {
	if l := len(seed); l != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, l)
	}
	e := newFromPrivate(ed25519.NewKeyFromSeed(seed))
	return &e, nil
}
