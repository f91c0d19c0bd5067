// Package facilitator defines the contract for x402 payment facilitator
// operations.
//
// A facilitator is a semi-trusted external oracle that verifies payment
// proofs and settles them on chain. Payment verification failure is a
// first-class expected outcome, roughly as common as an HTTP 404, so
// VerifyPayment and SettlePayment return typed results instead of errors:
// callers branch on the result and the 402 protocol's control flow stays
// linear. Replay protection for reused transactions is the facilitator's
// responsibility; the gate carries no replay state of its own.
package facilitator

import (
	"context"

	x402 "github.com/WeShipHQ/justvibecode"
)

// Interface is the narrow facilitator contract. A local mock oracle can be
// substituted in tests without touching the gate logic.
type Interface interface {
	// Supported queries the facilitator for the payment kinds it services.
	Supported(ctx context.Context) (*x402.SupportedResponse, error)

	// GetFeePayer resolves the facilitator's fee payer address for a
	// network with the exact scheme. Returns x402.ErrNotSupported when the
	// facilitator cannot service the network or publishes no fee payer.
	GetFeePayer(ctx context.Context, network string) (string, error)

	// VerifyPayment checks a payment proof against the requirements without
	// moving funds. It never returns an error: transport and protocol
	// failures collapse to an invalid result with reason
	// "unexpected_verify_error".
	VerifyPayment(ctx context.Context, paymentHeader string, requirements x402.PaymentRequirements) x402.VerifyResponse

	// SettlePayment broadcasts a verified payment on chain. It never
	// returns an error: hard failures collapse to an unsuccessful result
	// with reason "unexpected_settle_error" and the network echoed from the
	// requirements.
	SettlePayment(ctx context.Context, paymentHeader string, requirements x402.PaymentRequirements) x402.SettleResponse
}

// VerifyRequest is the request payload sent to POST /verify.
type VerifyRequest struct {
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is the request payload sent to POST /settle.
type SettleRequest struct {
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}
