package svm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"math/big"
	"testing"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/WeShipHQ/justvibecode"
)

const (
	testTreasury = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testFeePayer = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"
	testMint     = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

type mockRPC struct {
	blockhash solana.Hash
	calls     int
}

func (m *mockRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	m.calls++
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            m.blockhash,
			LastValidBlockHeight: 100,
		},
	}, nil
}

func newTestSigner(t *testing.T, opts ...Option) (*Signer, *LocalWallet) {
	t.Helper()
	wallet, err := NewLocalWallet(solana.NewWallet().PrivateKey.String())
	if err != nil {
		t.Fatalf("NewLocalWallet failed: %v", err)
	}
	opts = append([]Option{WithRPCClient(&mockRPC{blockhash: solana.Hash{7}})}, opts...)
	signer, err := NewSigner(x402.NetworkSolanaDevnet, wallet, opts...)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return signer, wallet
}

func testRequirements() *x402.PaymentRequirements {
	return &x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkSolanaDevnet,
		MaxAmountRequired: "10000",
		Resource:          "https://example.com/api/chat",
		PayTo:             testTreasury,
		MaxTimeoutSeconds: 300,
		Asset:             testMint,
		Extra:             &x402.SchemeExtra{FeePayer: testFeePayer},
	}
}

func TestLocalWallet(t *testing.T) {
	generated := solana.NewWallet()
	wallet, err := NewLocalWallet(generated.PrivateKey.String())
	if err != nil {
		t.Fatalf("NewLocalWallet failed: %v", err)
	}
	if !wallet.Address().Equals(generated.PublicKey()) {
		t.Errorf("Address mismatch: %s != %s", wallet.Address(), generated.PublicKey())
	}

	if _, err := NewLocalWallet("not-a-key"); !errors.Is(err, x402.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestSignerCanSign(t *testing.T) {
	signer, _ := newTestSigner(t)

	if !signer.CanSign(testRequirements()) {
		t.Error("Expected signer to accept matching requirements")
	}

	wrongNetwork := testRequirements()
	wrongNetwork.Network = x402.NetworkSolana
	if signer.CanSign(wrongNetwork) {
		t.Error("Accepted requirements for another network")
	}

	wrongScheme := testRequirements()
	wrongScheme.Scheme = "upto"
	if signer.CanSign(wrongScheme) {
		t.Error("Accepted unknown scheme")
	}

	wrongMint := testRequirements()
	wrongMint.Asset = testTreasury
	if signer.CanSign(wrongMint) {
		t.Error("Accepted unknown mint")
	}

	if signer.CanSign(nil) {
		t.Error("Accepted nil requirements")
	}
}

func TestSignerSign(t *testing.T) {
	signer, wallet := newTestSigner(t)

	payload, err := signer.Sign(context.Background(), testRequirements())
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if payload.X402Version != x402.X402Version {
		t.Errorf("Expected version %d, got %d", x402.X402Version, payload.X402Version)
	}
	if payload.Scheme != x402.SchemeExact || payload.Network != x402.NetworkSolanaDevnet {
		t.Errorf("Scheme/network not echoed: %s %s", payload.Scheme, payload.Network)
	}

	txBytes, err := base64.StdEncoding.DecodeString(payload.Payload.Transaction)
	if err != nil {
		t.Fatalf("Transaction not base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(txBytes))
	if err != nil {
		t.Fatalf("Transaction not parseable: %v", err)
	}

	// Fee payer slot belongs to the facilitator and must stay unsigned.
	feePayer := solana.MustPublicKeyFromBase58(testFeePayer)
	if !tx.Message.AccountKeys[0].Equals(feePayer) {
		t.Errorf("Expected fee payer %s first, got %s", feePayer, tx.Message.AccountKeys[0])
	}
	if len(tx.Signatures) < 2 {
		t.Fatalf("Expected 2 signature slots, got %d", len(tx.Signatures))
	}
	var zeroSig solana.Signature
	if !bytes.Equal(tx.Signatures[0][:], zeroSig[:]) {
		t.Error("Fee payer signature slot should be empty")
	}
	if bytes.Equal(tx.Signatures[1][:], zeroSig[:]) {
		t.Error("Wallet signature missing")
	}

	// Instruction order: compute limit, compute price, ATA create, transfer.
	if len(tx.Message.Instructions) != 4 {
		t.Fatalf("Expected 4 instructions, got %d", len(tx.Message.Instructions))
	}

	_ = wallet
}

func TestSignerSignWithoutFeePayerExtra(t *testing.T) {
	signer, wallet := newTestSigner(t)

	req := testRequirements()
	req.Extra = nil

	payload, err := signer.Sign(context.Background(), req)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	txBytes, _ := base64.StdEncoding.DecodeString(payload.Payload.Transaction)
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(txBytes))
	if err != nil {
		t.Fatalf("Transaction not parseable: %v", err)
	}

	// Without an advertised fee payer the wallet pays its own fees.
	if !tx.Message.AccountKeys[0].Equals(wallet.Address()) {
		t.Errorf("Expected wallet as fee payer, got %s", tx.Message.AccountKeys[0])
	}
}

func TestSignerAmountChecks(t *testing.T) {
	signer, _ := newTestSigner(t, WithMaxAmount(big.NewInt(5000)))

	if _, err := signer.Sign(context.Background(), testRequirements()); !errors.Is(err, x402.ErrPaymentLimitExceeded) {
		t.Errorf("Expected ErrPaymentLimitExceeded, got %v", err)
	}

	zero := testRequirements()
	zero.MaxAmountRequired = "0"
	if _, err := signer.Sign(context.Background(), zero); !errors.Is(err, x402.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for zero, got %v", err)
	}

	garbage := testRequirements()
	garbage.MaxAmountRequired = "lots"
	if _, err := signer.Sign(context.Background(), garbage); !errors.Is(err, x402.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for garbage, got %v", err)
	}
}

func TestSignerRejectsMismatchedRequirements(t *testing.T) {
	signer, _ := newTestSigner(t)

	wrongNetwork := testRequirements()
	wrongNetwork.Network = x402.NetworkSolana
	if _, err := signer.Sign(context.Background(), wrongNetwork); !errors.Is(err, x402.ErrNoCompatibleWallet) {
		t.Errorf("Expected ErrNoCompatibleWallet, got %v", err)
	}
}
