package svm

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/WeShipHQ/justvibecode"
	solutil "github.com/WeShipHQ/justvibecode/internal/solana"
)

// RPCClient is the interface for Solana RPC operations needed by the signer.
// This allows for dependency injection and easier testing.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// Signer builds partially signed Solana payment transactions that satisfy
// "exact" scheme payment requirements. The wallet signs as token owner; the
// fee payer slot is left for the facilitator.
type Signer struct {
	wallet    Wallet
	network   string
	tokens    []x402.TokenConfig
	maxAmount *big.Int
	rpcClient RPCClient
}

// Option configures a Signer.
type Option func(*Signer) error

// NewSigner creates a Signer for the given network and wallet. The token
// list defaults to the network's known tokens when empty.
func NewSigner(network string, wallet Wallet, opts ...Option) (*Signer, error) {
	if err := x402.ValidateNetwork(network); err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, fmt.Errorf("%w: nil wallet", x402.ErrInvalidKey)
	}

	tokens, err := x402.NetworkTokens(network)
	if err != nil {
		return nil, err
	}

	s := &Signer{
		wallet:  wallet,
		network: network,
		tokens:  tokens,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if len(s.tokens) == 0 {
		return nil, x402.ErrNoTokens
	}

	return s, nil
}

// WithMaxAmount sets the maximum atomic amount per payment.
func WithMaxAmount(amount *big.Int) Option {
	return func(s *Signer) error {
		s.maxAmount = amount
		return nil
	}
}

// WithTokens overrides the set of tokens the signer will pay with.
func WithTokens(tokens []x402.TokenConfig) Option {
	return func(s *Signer) error {
		s.tokens = tokens
		return nil
	}
}

// WithRPCClient sets a custom RPC client.
// The client must implement the RPCClient interface.
func WithRPCClient(client RPCClient) Option {
	return func(s *Signer) error {
		s.rpcClient = client
		return nil
	}
}

// Network returns the network identifier.
func (s *Signer) Network() string {
	return s.network
}

// Scheme returns the payment scheme identifier.
func (s *Signer) Scheme() string {
	return x402.SchemeExact
}

// Address returns the paying wallet's public key.
func (s *Signer) Address() solana.PublicKey {
	return s.wallet.Address()
}

// MaxAmount returns the per-payment spending limit, or nil if no limit is set.
func (s *Signer) MaxAmount() *big.Int {
	return s.maxAmount
}

// CanSign reports whether this signer can satisfy the given payment
// requirements: matching scheme, matching network, and a known token mint.
func (s *Signer) CanSign(requirements *x402.PaymentRequirements) bool {
	if requirements == nil {
		return false
	}
	if requirements.Scheme != x402.SchemeExact {
		return false
	}
	if requirements.Network != s.network {
		return false
	}

	// Base58 mint addresses are case-sensitive.
	for _, token := range s.tokens {
		if token.Address == requirements.Asset {
			return true
		}
	}

	return false
}

// Sign builds a partially signed transfer for the requirements and wraps it
// in a PaymentPayload ready for the X-PAYMENT header.
func (s *Signer) Sign(ctx context.Context, requirements *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	if !s.CanSign(requirements) {
		return nil, x402.ErrNoCompatibleWallet
	}

	amount := new(big.Int)
	if _, ok := amount.SetString(requirements.MaxAmountRequired, 10); !ok {
		return nil, x402.ErrInvalidAmount
	}
	if amount.Sign() <= 0 {
		return nil, x402.ErrInvalidAmount
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, x402.ErrPaymentLimitExceeded
	}

	// Reject amounts that cannot fit in the u64 transfer instruction.
	maxUint64 := new(big.Int).SetUint64(^uint64(0))
	if amount.Cmp(maxUint64) > 0 {
		return nil, x402.ErrInvalidAmount
	}

	mintAddress, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address: %w", err)
	}

	recipient, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	var decimals uint8
	var found bool
	for _, token := range s.tokens {
		if token.Address == requirements.Asset {
			if token.Decimals < 0 || token.Decimals > 255 {
				return nil, fmt.Errorf("%w: invalid token decimals %d", x402.ErrInvalidToken, token.Decimals)
			}
			decimals = uint8(token.Decimals)
			found = true
			break
		}
	}
	if !found {
		return nil, x402.ErrInvalidToken
	}

	// The fee payer comes from requirements.extra; when the server did not
	// advertise one, the wallet pays its own fees.
	feePayer := s.wallet.Address()
	if requirements.Extra != nil && requirements.Extra.FeePayer != "" {
		feePayer, err = solana.PublicKeyFromBase58(requirements.Extra.FeePayer)
		if err != nil {
			return nil, fmt.Errorf("invalid feePayer address: %w", err)
		}
	}

	client := s.rpcClient
	if client == nil {
		rpcURL, err := solutil.GetRPCURL(s.network)
		if err != nil {
			return nil, fmt.Errorf("failed to get RPC URL: %w", err)
		}
		client = rpc.New(rpcURL)
	}

	recent, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}

	txBase64, err := s.buildTransfer(
		ctx,
		mintAddress,
		recipient,
		amount.Uint64(),
		decimals,
		feePayer,
		recent.Value.Blockhash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      requirements.Scheme,
		Network:     requirements.Network,
		Payload: x402.ExactSvmPayload{
			Transaction: txBase64,
		},
	}, nil
}

// buildTransfer assembles the transfer transaction and has the wallet
// partially sign it. Instruction order follows the exact scheme for SVM:
// compute unit limit, compute unit price, idempotent ATA creation for the
// recipient, then the checked transfer.
func (s *Signer) buildTransfer(
	ctx context.Context,
	mint solana.PublicKey,
	recipient solana.PublicKey,
	amount uint64,
	decimals uint8,
	feePayer solana.PublicKey,
	blockhash solana.Hash,
) (string, error) {
	owner := s.wallet.Address()

	sourceATA, err := solutil.DeriveAssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", fmt.Errorf("failed to find source ATA: %w", err)
	}

	destATA, err := solutil.DeriveAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return "", fmt.Errorf("failed to find destination ATA: %w", err)
	}

	// The feePayer sponsors the rent-exempt balance if the recipient's ATA
	// does not exist yet.
	createATAInstruction, err := solutil.BuildCreateIdempotentATAInstruction(feePayer, recipient, mint)
	if err != nil {
		return "", fmt.Errorf("failed to build ATA creation instruction: %w", err)
	}

	instructions := []solana.Instruction{
		solutil.BuildSetComputeUnitLimitInstruction(solutil.DefaultComputeUnits),
		solutil.BuildSetComputeUnitPriceInstruction(solutil.DefaultComputeUnitPrice),
		createATAInstruction,
		solutil.BuildTransferCheckedInstruction(sourceATA, mint, destATA, owner, amount, decimals),
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	// The wallet signs as token owner only. The fee payer signature slot
	// stays empty until the facilitator countersigns and submits.
	tx, err = s.wallet.SignTransaction(ctx, tx)
	if err != nil {
		return "", err
	}

	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction: %w", err)
	}

	return base64.StdEncoding.EncodeToString(txBytes), nil
}
