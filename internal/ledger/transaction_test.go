package ledger_test

import (
	"encoding/base64"
	"encoding/hex"
	"slices"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hossein1376/walletauth/internal/identity"
	"github.com/hossein1376/walletauth/internal/ledger"
)

func newSigner(t *testing.T) (*identity.Ed25519, solana.PublicKey) {
	t.Helper()
	id, err := identity.NewEd25519()
	require.NoError(t, err)
	return id, solana.PublicKeyFromBytes(id.PublicKey)
}

func blockhash() solana.Hash {
	var h solana.Hash
	for i := range h {
		h[i] = byte(i + 1)
	}
	return h
}

func newMemo(t *testing.T, payer solana.PublicKey, text string) *solana.Transaction {
	t.Helper()
	tx, err := ledger.NewMemoTransaction(payer, blockhash(), text)
	require.NoError(t, err)
	return tx
}

func TestDecodeTransaction_Mainnet(t *testing.T) {
	a := require.New(t)
	// Transfer with a compute budget instruction, as submitted to mainnet.
	raw, err := base64.StdEncoding.DecodeString("AVBFwRrn4wroV9+NVQfgg/GbjFtQFodLnNI5oTpDMQiQ4HfZNyFzcFamHSSFW4p5wc3efeEKvykbmk8jzf2LCQwBAAIGjYddInd/DSl2KJCP18GhEDlaJyPKVrgBGGsr3TF6jSYPgr3AdITNKr2UQVQ5I+Wh5StQv/a5XdLr6VN4Y21My1M/Y1FNK5wQLKJa1LYfN/HAudufFVtc0fRPR6AMUJ9UrkRI7sjY/PnpcXLF7A7SBvJrWu+o8+7QIaD8sL9aXkGFDy1uAqR6+CTQmradxC1wyyjL+iSft+5XudJWwSdi7wAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAi+i1vCST+HNO0DEchpEJImMHhZ1BReuf7poRqmXpeA8CBAUBAgMCAgcAAwAAAAEABQIAAAwCAAAA6w0AAAAAAAA=")
	a.NoError(err)

	tx, err := ledger.DecodeTransaction(raw)
	a.NoError(err)
	payer := solana.MustPublicKeyFromBase58("AXUChvpRwUUPMJhA4d23WcoyAL7W8zgAeo7KoH57c75F")
	a.Equal(solana.PublicKeySlice{payer}, tx.Message.Signers())
	a.Equal(solana.MustHashFromBase58("AR9Uq4tfVsgRqTA5Y4L5vCyL2RZBaDvZu76d8nPEz8Dc"), tx.Message.RecentBlockhash)
	a.Len(tx.Message.Instructions, 2)

	sig, ok := ledger.SignatureFor(tx, payer)
	a.True(ok)
	msg, err := tx.Message.MarshalBinary()
	a.NoError(err)
	a.Equal(raw[1+solana.SignatureLength:], msg)
	a.NoError(identity.VerifyEd25519(payer[:], msg, sig[:]))

	_, ok = ledger.FindInstruction(&tx.Message, solana.MemoProgramID)
	a.False(ok)
}

func TestNewMemoTransaction_Layout(t *testing.T) {
	a := require.New(t)
	payer := solana.MustPublicKeyFromBase58("5oNDL3swdJJF1g9DzJiZ4ynHXgszjAEpUkxVYejchzrY")

	tx := newMemo(t, payer, "e114ba7a234f9094")
	msg, err := tx.Message.MarshalBinary()
	a.NoError(err)
	want, _ := hex.DecodeString(
		"01000102" +
			"474f7335d5399e496566fcfe89b06ddf2f9df31fab601aafbf9afe5574a596ad" +
			"054a535a992921064d24e87160da387c7c35b5ddbc92bb81e41fa8404105448d" +
			"0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20" +
			"0101010010" + hex.EncodeToString([]byte("e114ba7a234f9094")),
	)
	a.Equal(want, msg)
}

func TestMemoTransaction_SignDecode(t *testing.T) {
	a := require.New(t)
	id, payer := newSigner(t)

	tx := newMemo(t, payer, "e114ba7a234f9094")
	_, ok := ledger.SignatureFor(tx, payer)
	a.False(ok, "unsigned slot must not count as a signature")

	a.NoError(ledger.Sign(tx, payer, id))
	raw, err := tx.MarshalBinary()
	a.NoError(err)

	decoded, err := ledger.DecodeTransaction(raw)
	a.NoError(err)
	a.False(decoded.Message.IsVersioned())
	a.Equal(solana.PublicKeySlice{payer}, decoded.Message.Signers())
	a.Equal(blockhash(), decoded.Message.RecentBlockhash)

	sig, ok := ledger.SignatureFor(decoded, payer)
	a.True(ok)
	msg, err := decoded.Message.MarshalBinary()
	a.NoError(err)
	a.NoError(identity.VerifyEd25519(id.PublicKey, msg, sig[:]))

	ix, ok := ledger.FindInstruction(&decoded.Message, solana.MemoProgramID)
	a.True(ok)
	a.Equal("e114ba7a234f9094", string(ix.Data))

	again, err := decoded.MarshalBinary()
	a.NoError(err)
	a.Equal(raw, again)
}

func TestSign_UnknownKey(t *testing.T) {
	a := require.New(t)
	id, payer := newSigner(t)
	_, stranger := newSigner(t)

	tx := newMemo(t, payer, "memo")
	err := ledger.Sign(tx, stranger, id)
	a.ErrorIs(err, ledger.ErrUnknownSigner)
}

func TestDecodeTransaction_V0(t *testing.T) {
	a := require.New(t)
	id, payer := newSigner(t)
	_, table := newSigner(t)

	tx := newMemo(t, payer, "v0 memo")
	tx.Message.SetAddressTableLookups([]solana.MessageAddressTableLookup{{
		AccountKey:      table,
		WritableIndexes: []uint8{1, 2},
		ReadonlyIndexes: []uint8{7},
	}})
	tx.Message.Instructions[0].Accounts = []uint16{0, 2, 4}
	a.NoError(ledger.Sign(tx, payer, id))

	raw, err := tx.MarshalBinary()
	a.NoError(err)
	decoded, err := ledger.DecodeTransaction(raw)
	a.NoError(err)
	a.Equal(solana.MessageVersionV0, decoded.Message.GetVersion())
	a.Equal(tx.Message.AddressTableLookups, decoded.Message.AddressTableLookups)

	msg, err := decoded.Message.MarshalBinary()
	a.NoError(err)
	a.Equal(byte(0x80), msg[0])
	sig, ok := ledger.SignatureFor(decoded, payer)
	a.True(ok)
	a.NoError(identity.VerifyEd25519(id.PublicKey, msg, sig[:]))
}

func TestDecodeTransaction_Malformed(t *testing.T) {
	id, payer := newSigner(t)
	tx := newMemo(t, payer, "memo")
	require.NoError(t, ledger.Sign(tx, payer, id))
	valid, err := tx.MarshalBinary()
	require.NoError(t, err)

	mutate := func(f func(*solana.Transaction)) []byte {
		c := *tx
		c.Signatures = slices.Clone(tx.Signatures)
		c.Message.AccountKeys = slices.Clone(tx.Message.AccountKeys)
		c.Message.Instructions = slices.Clone(tx.Message.Instructions)
		f(&c)
		b, err := c.MarshalBinary()
		require.NoError(t, err)
		return b
	}

	cases := map[string][]byte{
		"empty":       {},
		"truncated":   valid[:len(valid)-3],
		"trailing":    append(slices.Clone(valid), 0x00),
		"version 1":   append(append([]byte{0x01}, valid[1:65]...), append([]byte{0x81}, valid[65:]...)...),
		"missing sig": append([]byte{0x00}, valid[65:]...),
		"extra sig":   append(append([]byte{0x02}, valid[1:65]...), valid[1:]...),
		"header exceeds keys": mutate(func(c *solana.Transaction) {
			c.Message.Header.NumReadonlyUnsignedAccounts = 5
		}),
		"no writable signer": mutate(func(c *solana.Transaction) {
			c.Message.Header.NumReadonlySignedAccounts = 1
		}),
		"duplicate key": mutate(func(c *solana.Transaction) {
			c.Message.AccountKeys[1] = c.Message.AccountKeys[0]
		}),
		"program out of range": mutate(func(c *solana.Transaction) {
			c.Message.Instructions[0].ProgramIDIndex = 9
		}),
		"payer as program": mutate(func(c *solana.Transaction) {
			c.Message.Instructions[0].ProgramIDIndex = 0
		}),
		"account out of range": mutate(func(c *solana.Transaction) {
			c.Message.Instructions[0].Accounts = []uint16{3}
		}),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.DecodeTransaction(raw)
			require.Error(t, err)
		})
	}
}
