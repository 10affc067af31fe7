package walletauth

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/hossein1376/walletauth/internal/identity"
	"github.com/hossein1376/walletauth/internal/ledger"
)

// Proof is evidence that the caller holds the private key of an address. The
// set of variants is closed: DirectProof and TransactionProof.
type Proof interface {
	Verify(ctx context.Context, addr identity.Address, uid string) (*ProofResult, error)
	proof()
}

// ProofResult carries what a verifier learned, for logging.
type ProofResult struct {
	Method  string
	Signers []string
	Memo    string
}

var (
	_ Proof = DirectProof{}
	_ Proof = TransactionProof{}
)

// DirectProof is a base58 detached ed25519 signature over the uid.
type DirectProof struct {
	Signature string
}

func (DirectProof) proof() {}

// Verify checks the signature over the UTF-8 bytes of uid. Undecodable and
// non-verifying signatures are the same rejection.
func (p DirectProof) Verify(_ context.Context, addr identity.Address, uid string) (*ProofResult, error) {
	sig, err := base58.Decode(p.Signature)
	if err != nil {
		return nil, newError(KindInvalidSignature, "signature is not valid base58", err)
	}
	if len(sig) != solana.SignatureLength {
		return nil, newError(KindInvalidSignature, "signature must be 64 bytes", nil)
	}
	if err := identity.VerifyEd25519(addr.PublicKey(), []byte(uid), sig); err != nil {
		return nil, newError(KindInvalidSignature, "", err)
	}
	return &ProofResult{Method: "signature", Signers: []string{addr.String()}}, nil
}

// TransactionProof is a base58 serialized transaction, signed by the address,
// whose memo instruction carries the uid.
type TransactionProof struct {
	Transaction string
}

func (TransactionProof) proof() {}

// Verify runs the checks in order and stops at the first failure: decode,
// signer membership, signature presence, signature validity, memo presence,
// memo equality.
func (p TransactionProof) Verify(_ context.Context, addr identity.Address, uid string) (*ProofResult, error) {
	raw, err := base58.Decode(p.Transaction)
	if err != nil {
		return nil, newError(KindMalformedTransaction, "transaction is not valid base58", err)
	}
	tx, err := ledger.DecodeTransaction(raw)
	if err != nil {
		return nil, newError(KindMalformedTransaction, "", err)
	}

	signers := tx.Message.Signers()
	res := &ProofResult{Method: "memo", Signers: make([]string, len(signers))}
	for i, s := range signers {
		res.Signers[i] = s.String()
	}

	key := solana.PublicKeyFromBytes(addr.Bytes())
	if !tx.Message.IsSigner(key) {
		return res, newError(KindAddressNotSigner, "address is not among required signers", nil)
	}
	sig, ok := ledger.SignatureFor(tx, key)
	if !ok {
		return res, newError(KindSignatureMissing, "signature for address not found", nil)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return res, newError(KindMalformedTransaction, "", err)
	}
	if err := identity.VerifyEd25519(addr.PublicKey(), msg, sig[:]); err != nil {
		return res, newError(KindInvalidSignature, "invalid signature for address", err)
	}

	ix, ok := ledger.FindInstruction(&tx.Message, solana.MemoProgramID)
	if !ok || len(ix.Data) == 0 {
		return res, newError(KindMemoMissing, "memo instruction not found or empty", nil)
	}
	if !utf8.Valid(ix.Data) {
		return res, newError(KindMemoMismatch, "memo is not valid UTF-8", nil)
	}
	res.Memo = string(ix.Data)
	if res.Memo != uid {
		return res, newError(KindMemoMismatch, "memo does not match uid", nil)
	}

	return res, nil
}

// asError normalizes verifier failures into *Error.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindInternal, "", err)
}
