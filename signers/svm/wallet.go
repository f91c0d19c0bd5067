// Package svm implements payment signing for Solana networks. A Signer
// builds and partially signs SPL token transfer transactions that fulfill
// x402 payment requirements; the facilitator's fee payer countersigns and
// submits them.
package svm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/WeShipHQ/justvibecode"
)

// Wallet abstracts a key holder that can sign Solana transactions. It has
// no ability to submit transactions to the network; submission is the
// facilitator's job.
type Wallet interface {
	// Address returns the wallet's public key.
	Address() solana.PublicKey

	// SignTransaction adds the wallet's signature to the transaction and
	// returns it. The transaction may carry other required signers whose
	// signatures are not yet present; the wallet must sign without them.
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// LocalWallet is a Wallet backed by an in-memory ed25519 private key.
type LocalWallet struct {
	key solana.PrivateKey
}

// NewLocalWallet creates a LocalWallet from a base58-encoded private key.
func NewLocalWallet(privateKey string) (*LocalWallet, error) {
	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return &LocalWallet{key: key}, nil
}

// NewLocalWalletFromFile creates a LocalWallet from a solana-keygen JSON
// keypair file.
func NewLocalWalletFromFile(path string) (*LocalWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return &LocalWallet{key: key}, nil
}

// Address returns the wallet's public key.
func (w *LocalWallet) Address() solana.PublicKey {
	return w.key.PublicKey()
}

// SignTransaction partially signs the transaction with the wallet's key.
// Signature slots for other signers (the fee payer) are left zeroed.
func (w *LocalWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}

	return tx, nil
}
