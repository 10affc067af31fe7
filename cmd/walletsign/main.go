// Command walletsign produces the proofs walletauth accepts from a local
// ed25519 key file.
//
//	walletsign keygen -key wallet.pem
//	walletsign uid -key wallet.pem -salt s3cr3t
//	walletsign sign -key wallet.pem <uid>
//	walletsign memo -key wallet.pem [-cluster url | -blockhash hash] <uid>
//
// Key files are PKCS#8 PEM, or Solana CLI keypair JSON when the name ends in
// .json. Nothing is ever broadcast.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"

	"github.com/hossein1376/walletauth/internal/identity"
	"github.com/hossein1376/walletauth/internal/ledger"
)

const defaultCluster = "https://api.devnet.solana.com"

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: walletsign keygen|address|uid|sign|memo [flags]")
	}
	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	keyPath := fs.String("key", "wallet.pem", "key file")

	switch cmd {
	case "keygen":
		if err := fs.Parse(args); err != nil {
			return err
		}
		return keygen(*keyPath, out)

	case "address":
		if err := fs.Parse(args); err != nil {
			return err
		}
		id, err := identity.LoadEd25519(*keyPath)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, id.Address())
		return err

	case "uid":
		salt := fs.String("salt", os.Getenv("SALT"), "hash salt of the service")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *salt == "" {
			return errors.New("salt is required")
		}
		id, err := identity.LoadEd25519(*keyPath)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, identity.NewDeriver(*salt).Derive(id.Address()))
		return err

	case "sign":
		if err := fs.Parse(args); err != nil {
			return err
		}
		uid, err := single(fs)
		if err != nil {
			return err
		}
		id, err := identity.LoadEd25519(*keyPath)
		if err != nil {
			return err
		}
		sig, err := id.Sign([]byte(uid))
		if err != nil {
			return fmt.Errorf("signing: %w", err)
		}
		return printJSON(out, map[string]string{
			"address":   id.Address().String(),
			"uid":       uid,
			"signature": base58.Encode(sig),
		})

	case "memo":
		cluster := fs.String("cluster", withDefault(os.Getenv("CLUSTER"), defaultCluster), "JSON-RPC endpoint")
		blockhash := fs.String("blockhash", "", "recent blockhash; fetched from the cluster when empty")
		timeout := fs.Duration("timeout", ledger.DefaultTimeout, "RPC timeout")
		if err := fs.Parse(args); err != nil {
			return err
		}
		uid, err := single(fs)
		if err != nil {
			return err
		}
		id, err := identity.LoadEd25519(*keyPath)
		if err != nil {
			return err
		}
		hash, err := recentBlockhash(*cluster, *blockhash, *timeout)
		if err != nil {
			return err
		}
		return memo(id, hash, uid, out)

	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func keygen(path string, out io.Writer) error {
	id, err := identity.NewEd25519()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	if err := id.Save(path); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "saved %s\naddress: %s\n", path, id.Address())
	return err
}

func recentBlockhash(cluster, given string, timeout time.Duration) (solana.Hash, error) {
	if given != "" {
		hash, err := solana.HashFromBase58(given)
		if err != nil {
			return solana.Hash{}, fmt.Errorf("parsing blockhash: %w", err)
		}
		return hash, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	hash, err := ledger.NewClient(cluster, ledger.WithTimeout(timeout)).LatestBlockhash(ctx)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("fetching blockhash from %s: %w", cluster, err)
	}
	return hash, nil
}

func memo(id *identity.Ed25519, hash solana.Hash, uid string, out io.Writer) error {
	payer := solana.PublicKeyFromBytes(id.PublicKey)
	tx, err := ledger.NewMemoTransaction(payer, hash, uid)
	if err != nil {
		return err
	}
	if err := ledger.Sign(tx, payer, id); err != nil {
		return err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serializing transaction: %w", err)
	}

	// Decode what was produced, the same way the service will.
	decoded, err := ledger.DecodeTransaction(raw)
	if err != nil {
		return fmt.Errorf("decoding own transaction: %w", err)
	}
	signers := make([]string, 0, len(decoded.Message.Signers()))
	for _, s := range decoded.Message.Signers() {
		signers = append(signers, s.String())
	}

	return printJSON(out, map[string]any{
		"address":     id.Address().String(),
		"uid":         uid,
		"blockhash":   hash.String(),
		"signers":     signers,
		"transaction": base58.Encode(raw),
	})
}

func single(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return "", fmt.Errorf("%s: expected exactly one uid argument", fs.Name())
	}
	return fs.Arg(0), nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
