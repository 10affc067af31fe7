package walletauth_test

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/hossein1376/walletauth"
	"github.com/hossein1376/walletauth/enigma"
	"github.com/hossein1376/walletauth/internal/identity"
	"github.com/hossein1376/walletauth/internal/ledger"
	"github.com/hossein1376/walletauth/token"
)

const testSalt = "test-salt"

var (
	testKey, _ = hex.DecodeString("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	testIV, _  = hex.DecodeString("0f0e0d0c0b0a09080706050403020100")
)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	c, err := enigma.NewCBC(testKey, testIV, false)
	require.NoError(t, err)
	return token.NewCodec(c)
}

func newService(t *testing.T, opts ...walletauth.Option) *walletauth.Service {
	t.Helper()
	return walletauth.NewService(testSalt, newCodec(t), opts...)
}

type wallet struct {
	id   *identity.Ed25519
	addr identity.Address
	key  solana.PublicKey
	uid  string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	id, err := identity.NewEd25519()
	require.NoError(t, err)
	return wallet{
		id:   id,
		addr: id.Address(),
		key:  solana.PublicKeyFromBytes(id.PublicKey),
		uid:  identity.NewDeriver(testSalt).Derive(id.Address()),
	}
}

func (w wallet) signUID(t *testing.T) string {
	t.Helper()
	sig, err := w.id.Sign([]byte(w.uid))
	require.NoError(t, err)
	return base58.Encode(sig)
}

func (w wallet) memoTx(t *testing.T, memo string) *solana.Transaction {
	t.Helper()
	var blockhash solana.Hash
	blockhash[0] = 7
	tx, err := ledger.NewMemoTransaction(w.key, blockhash, memo)
	require.NoError(t, err)
	return tx
}

func encodeTx(t *testing.T, tx *solana.Transaction) string {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base58.Encode(raw)
}

func (w wallet) signedMemo(t *testing.T, memo string) string {
	t.Helper()
	tx := w.memoTx(t, memo)
	require.NoError(t, ledger.Sign(tx, w.key, w.id))
	return encodeTx(t, tx)
}

func requireKind(t *testing.T, err error, kind walletauth.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, walletauth.KindOf(err), "err: %v", err)
	require.ErrorIs(t, err, &walletauth.Error{Kind: kind})
}

type stubBalance struct {
	lamports uint64
	err      error
	calls    int
}

func (s *stubBalance) Balance(context.Context, identity.Address) (uint64, error) {
	s.calls++
	return s.lamports, s.err
}
