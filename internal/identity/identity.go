package identity

import (
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const privateKeyType = "PRIVATE KEY"

var (
	ErrMissingPEM       = errors.New("no PEM data found")
	ErrMissingFile      = errors.New("file not found")
	ErrInvalidKey       = errors.New("invalid key type")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Address validation failures. Each one is a terminal rejection; there is no
// partially valid address.
var (
	ErrEmptyAddress     = errors.New("address must be a non-empty string")
	ErrMalformedAddress = errors.New("address is not valid base58")
	ErrAddressLength    = errors.New("invalid address length after decoding")
	ErrNotOnCurve       = errors.New("address is not on ed25519 curve")
)

func readKeyData(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMissingFile
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrMissingPEM
	}
	return block.Bytes, nil
}

func saveKey(key []byte, kType, path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	block := pem.Block{
		Bytes: key,
		Type:  kType,
	}
	if err := pem.Encode(file, &block); err != nil {
		return fmt.Errorf("encode key: %w", err)
	}

	return nil
}
