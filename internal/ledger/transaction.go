package ledger

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/memo"
)

const maxAccountKeys = 256

var (
	ErrUnsupportedVersion = errors.New("unsupported message version")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrTrailingBytes      = errors.New("trailing bytes after transaction")
	ErrSignatureCount     = errors.New("signature count does not match header")
	ErrUnknownSigner      = errors.New("key is not a required signer")
)

// DecodeTransaction parses a serialized legacy or version 0 transaction. The
// whole input must be consumed and must be the canonical encoding of what was
// decoded, so the re-serialized message is exactly what was signed.
func DecodeTransaction(b []byte) (*solana.Transaction, error) {
	dec := bin.NewBinDecoder(b)
	tx, err := solana.TransactionFromDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if dec.Remaining() != 0 {
		return nil, ErrTrailingBytes
	}
	switch v := tx.Message.GetVersion(); v {
	case solana.MessageVersionLegacy, solana.MessageVersionV0:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v-1)
	}
	if int(tx.Message.Header.NumRequiredSignatures) != len(tx.Signatures) {
		return nil, fmt.Errorf(
			"%w: %d signatures, %d required",
			ErrSignatureCount, len(tx.Signatures), tx.Message.Header.NumRequiredSignatures,
		)
	}
	if err := sanitize(&tx.Message); err != nil {
		return nil, err
	}

	again, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if !bytes.Equal(again, b) {
		return nil, fmt.Errorf("%w: non-canonical encoding", ErrMalformedMessage)
	}
	return tx, nil
}

// sanitize applies the structural checks the ledger runtime performs before
// looking at signatures.
func sanitize(m *solana.Message) error {
	h := m.Header
	keys := len(m.AccountKeys)
	if int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsignedAccounts) > keys {
		return fmt.Errorf("%w: header exceeds %d account keys", ErrMalformedMessage, keys)
	}
	if h.NumReadonlySignedAccounts >= h.NumRequiredSignatures {
		return fmt.Errorf("%w: no writable signer", ErrMalformedMessage)
	}

	seen := make(map[solana.PublicKey]struct{}, keys)
	for _, k := range m.AccountKeys {
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate account key %s", ErrMalformedMessage, k)
		}
		seen[k] = struct{}{}
	}

	total := keys
	for _, l := range m.AddressTableLookups {
		total += len(l.WritableIndexes) + len(l.ReadonlyIndexes)
	}
	if total > maxAccountKeys {
		return fmt.Errorf("%w: %d accounts", ErrMalformedMessage, total)
	}

	for i, ix := range m.Instructions {
		// Programs are never loaded through lookup tables and never pay fees.
		if ix.ProgramIDIndex == 0 || int(ix.ProgramIDIndex) >= keys {
			return fmt.Errorf(
				"%w: instruction %d program index %d out of range",
				ErrMalformedMessage, i, ix.ProgramIDIndex,
			)
		}
		for _, acc := range ix.Accounts {
			if int(acc) >= total {
				return fmt.Errorf(
					"%w: instruction %d account index %d out of range",
					ErrMalformedMessage, i, acc,
				)
			}
		}
	}
	return nil
}

// FindInstruction returns the first instruction invoking program.
func FindInstruction(m *solana.Message, program solana.PublicKey) (solana.CompiledInstruction, bool) {
	for _, ix := range m.Instructions {
		p, err := m.Program(ix.ProgramIDIndex)
		if err == nil && p.Equals(program) {
			return ix, true
		}
	}
	return solana.CompiledInstruction{}, false
}

func signerIndex(m *solana.Message, key solana.PublicKey) (int, bool) {
	n := min(int(m.Header.NumRequiredSignatures), len(m.AccountKeys))
	for i, k := range m.AccountKeys[:n] {
		if k.Equals(key) {
			return i, true
		}
	}
	return -1, false
}

// SignatureFor returns the signature slot belonging to key. ok is false when
// key is not a required signer or the slot was never filled.
func SignatureFor(tx *solana.Transaction, key solana.PublicKey) (sig solana.Signature, ok bool) {
	i, found := signerIndex(&tx.Message, key)
	if !found || i >= len(tx.Signatures) || tx.Signatures[i].IsZero() {
		return solana.Signature{}, false
	}
	return tx.Signatures[i], true
}

type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// Sign fills the signature slot of key with a signature over the message.
func Sign(tx *solana.Transaction, key solana.PublicKey, s Signer) error {
	i, ok := signerIndex(&tx.Message, key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSigner, key)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serializing message: %w", err)
	}
	sig, err := s.Sign(msg)
	if err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	if len(sig) != solana.SignatureLength {
		return fmt.Errorf("signer returned %d bytes", len(sig))
	}
	for len(tx.Signatures) < int(tx.Message.Header.NumRequiredSignatures) {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	copy(tx.Signatures[i][:], sig)
	return nil
}

// NewMemoTransaction builds an unsigned legacy transaction paid for by payer
// with a single memo instruction that lists payer as its signer.
func NewMemoTransaction(payer solana.PublicKey, blockhash solana.Hash, text string) (*solana.Transaction, error) {
	// The memo program reads instruction data as raw UTF-8, while memo.Create
	// encodes its message with a length prefix. Only its accounts are reused.
	accounts := memo.NewMemoInstruction([]byte(text), payer).AccountMetaSlice
	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(memo.ProgramID, accounts, []byte(text))},
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("building memo transaction: %w", err)
	}
	return tx, nil
}
