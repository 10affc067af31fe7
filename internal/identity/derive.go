package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// UIDLength is the number of hex characters kept from the digest. 64 bits is
// enough to make collisions improbable over any realistic wallet population;
// it is an identifier, not a security boundary.
const UIDLength = 16

// Deriver maps addresses to user identifiers. It holds no mutable state and is
// safe for concurrent use.
type Deriver struct {
	salt string
}

func NewDeriver(salt string) Deriver {
	return Deriver{salt: salt}
}

// Derive returns the first UIDLength hex characters of
// sha256(address || salt).
func (d Deriver) Derive(a Address) string {
	sum := sha256.Sum256([]byte(a.String() + d.salt))
	return hex.EncodeToString(sum[:])[:UIDLength]
}
