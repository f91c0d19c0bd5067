// Package x402 implements the x402 payment protocol for Solana.
//
// x402 turns an ordinary HTTP endpoint into a pay-per-call resource. The
// server answers unpaid requests with HTTP 402 and a machine-readable list of
// payment requirements, the client signs an SPL token transfer satisfying one
// of them and retries with an X-PAYMENT header, and a facilitator service
// verifies and settles the transfer on chain before the protected handler
// runs.
//
// The protocol pieces live in subpackages:
//   - http: server middleware, facilitator client, paying http.RoundTripper
//   - signers/svm: wallet adapter and Solana transaction signing
//   - facilitator: the facilitator service contract
//   - encoding: base64 wire codec for headers
//   - usage, audit: free-tier counters and settled-payment records
package x402

import "math/big"

// X402Version is the protocol version carried on every payload.
const X402Version = 1

// SchemeExact is the only settlement scheme supported: the client transfers
// exactly the required amount to the payTo address.
const SchemeExact = "exact"

// HTTP header names used by the protocol.
const (
	// PaymentHeader carries the base64-encoded PaymentPayload on a request.
	PaymentHeader = "X-PAYMENT"

	// PaymentResponseHeader carries the base64-encoded SettleResponse on a
	// successfully settled response.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"

	// PaymentTokenHeader lets the caller choose which token to be charged in
	// (e.g. "USDC" or "SOL") before the challenge is built.
	PaymentTokenHeader = "X-Payment-Token"

	// WalletAddressHeader carries the caller's wallet address for free-tier
	// eligibility checks. It is advisory and never trusted for payment.
	WalletAddressHeader = "X-Wallet-Address"
)

// SchemeExtra carries scheme-specific additions to a payment requirement.
// For the exact scheme on Solana the only field is the facilitator's fee
// payer address, obtained from its /supported endpoint.
type SchemeExtra struct {
	// FeePayer is the address the facilitator uses to pay network fees.
	FeePayer string `json:"feePayer,omitempty"`
}

// PaymentRequirements describes a single payment option the server demands.
// It is immutable once created and fully deterministic for a given route
// configuration and resource URL.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier. Always "exact".
	Scheme string `json:"scheme"`

	// Network is the target cluster, e.g. "solana-devnet".
	Network string `json:"network"`

	// MaxAmountRequired is the price in atomic token units, as a decimal-free
	// integer string to avoid float precision loss.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the fully-qualified URL of the protected endpoint. It must
	// match the actual request URL in the protocol's trust model.
	Resource string `json:"resource"`

	// Description is human-readable metadata about the charge.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// PayTo is the recipient (treasury) wallet address.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds is how long the facilitator will accept this
	// requirements set as valid for settlement. A duration, not a deadline.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the SPL token mint address being demanded.
	Asset string `json:"asset"`

	// OutputSchema documents the shape of the eventual response. Never
	// validated, documentation only.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// Extra carries scheme-specific data such as the facilitator fee payer.
	Extra *SchemeExtra `json:"extra,omitempty"`
}

// ExactSvmPayload is the Solana payload for the exact scheme: a base64
// serialized transaction, signed by the payer but never submitted by the
// client. Submission is the facilitator's exclusive responsibility.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// PaymentPayload is the client's proof of payment, carried base64-encoded in
// the X-PAYMENT header. It exists only for the duration of one request.
type PaymentPayload struct {
	// X402Version is the protocol version (always 1).
	X402Version int `json:"x402Version"`

	// Scheme must match the requirement being satisfied.
	Scheme string `json:"scheme"`

	// Network must match the requirement being satisfied.
	Network string `json:"network"`

	// Payload is the signed Solana transaction.
	Payload ExactSvmPayload `json:"payload"`
}

// PaymentRequired is the 402 challenge body. Accepts is an array on the wire
// to allow multi-option negotiation; current servers populate exactly one
// entry because the token is selected before the challenge is built.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// PaymentFailure is the 402 body after a submitted proof was rejected.
// Callers distinguish it from the initial challenge by the presence of
// Reason.
type PaymentFailure struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// VerifyResponse is the facilitator's terminal judgment on a payment proof.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleResponse is the facilitator's settlement result. Transaction is the
// on-chain signature once broadcast, empty on failure. Network is always
// populated, even on failure, so callers can log and audit by network.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// SupportedKind describes one payment type a facilitator can service.
type SupportedKind struct {
	Scheme  string       `json:"scheme"`
	Network string       `json:"network"`
	Extra   *SchemeExtra `json:"extra,omitempty"`
}

// SupportedResponse is returned by the facilitator /supported endpoint.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds,omitempty"`
}

// TokenConfig describes an SPL token a signer or registry knows about.
type TokenConfig struct {
	// Address is the token mint address.
	Address string

	// Symbol is the token symbol, e.g. "USDC".
	Symbol string

	// Decimals is the number of decimal places for the token.
	Decimals int

	// Priority orders tokens within a signer. Lower is preferred.
	Priority int

	// Name is an optional human-readable token name.
	Name string
}

// AmountToBigInt converts a human-readable decimal amount to atomic units.
// For example, "0.01" with 6 decimals becomes 10000. The conversion uses
// rational arithmetic so there is no floating-point drift for any decimal
// count used in practice (6 for USDC, 9 for SOL). Amounts that do not divide
// evenly into atomic units are rejected rather than rounded.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, scale)

	if value.Denom().Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// BigIntToAmount converts atomic units back to a decimal string.
// For example, 10000 with 6 decimals becomes "0.010000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	rat := new(big.Rat).SetInt(value)
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	rat.Quo(rat, scale)

	return rat.FloatString(decimals)
}
