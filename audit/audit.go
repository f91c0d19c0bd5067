// Package audit receives settled-payment records from the gate for external
// persistence. The gate hands over one record per successful settlement and
// moves on; writer failures are logged by the caller, never surfaced to the
// paying client, because the payment itself already succeeded.
package audit

import (
	"context"
	"time"

	x402 "github.com/WeShipHQ/justvibecode"
)

// Record captures everything an operator needs to reconcile one settled
// payment against the chain and the facilitator.
type Record struct {
	// WalletAddress is the payer, when known.
	WalletAddress string

	// TransactionSignature is the on-chain signature from settlement.
	TransactionSignature string

	// Network is the Solana cluster the payment settled on.
	Network string

	// Token is the charge token symbol (e.g. "USDC").
	Token string

	// Amount is the charged amount in atomic units.
	Amount string

	// ResourceURL is the protected endpoint that was paid for.
	ResourceURL string

	// Verify and Settle are the facilitator's raw responses.
	Verify x402.VerifyResponse
	Settle x402.SettleResponse

	// CreatedAt is when the gate recorded the settlement.
	CreatedAt time.Time
}

// Writer persists settled-payment records.
type Writer interface {
	Record(ctx context.Context, rec Record) error
}

// NoopWriter discards records.
type NoopWriter struct{}

func (NoopWriter) Record(context.Context, Record) error { return nil }
