package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/hossein1376/walletauth/internal/identity"
	"github.com/hossein1376/walletauth/internal/ledger"
)

func TestRun(t *testing.T) {
	a := require.New(t)
	key := filepath.Join(t.TempDir(), "wallet.pem")

	var out bytes.Buffer
	a.NoError(run([]string{"keygen", "-key", key}, &out))
	a.Contains(out.String(), "address: ")
	a.Error(run([]string{"keygen", "-key", key}, &out), "existing key must not be overwritten")

	out.Reset()
	a.NoError(run([]string{"address", "-key", key}, &out))
	addr, err := identity.ParseAddress(strings.TrimSpace(out.String()))
	a.NoError(err)

	out.Reset()
	a.NoError(run([]string{"uid", "-key", key, "-salt", "test-salt"}, &out))
	uid := strings.TrimSpace(out.String())
	a.Equal(identity.NewDeriver("test-salt").Derive(addr), uid)

	t.Run("sign", func(t *testing.T) {
		a := require.New(t)
		var out bytes.Buffer
		a.NoError(run([]string{"sign", "-key", key, uid}, &out))
		var res map[string]string
		a.NoError(json.Unmarshal(out.Bytes(), &res))
		sig, err := base58.Decode(res["signature"])
		a.NoError(err)
		a.NoError(identity.VerifyEd25519(addr.PublicKey(), []byte(uid), sig))
	})

	t.Run("memo", func(t *testing.T) {
		a := require.New(t)
		var hash solana.Hash
		hash[31] = 9
		var out bytes.Buffer
		a.NoError(run([]string{"memo", "-key", key, "-blockhash", hash.String(), uid}, &out))
		var res struct {
			Signers     []string `json:"signers"`
			Transaction string   `json:"transaction"`
		}
		a.NoError(json.Unmarshal(out.Bytes(), &res))
		a.Equal([]string{addr.String()}, res.Signers)

		raw, err := base58.Decode(res.Transaction)
		a.NoError(err)
		tx, err := ledger.DecodeTransaction(raw)
		a.NoError(err)
		a.Equal(hash, tx.Message.RecentBlockhash)
		ix, ok := ledger.FindInstruction(&tx.Message, solana.MemoProgramID)
		a.True(ok)
		a.Equal(uid, string(ix.Data))
	})

	t.Run("usage errors", func(t *testing.T) {
		a := require.New(t)
		var out bytes.Buffer
		a.Error(run(nil, &out))
		a.Error(run([]string{"bogus"}, &out))
		a.Error(run([]string{"sign", "-key", key}, &out))
		a.Error(run([]string{"uid", "-key", key, "-salt", ""}, &out))
		a.ErrorIs(run([]string{"address", "-key", filepath.Join(t.TempDir(), "none.pem")}, &out), identity.ErrMissingFile)
	})
}
