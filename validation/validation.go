// Package validation provides structural validation for x402 payment data:
// amounts, Solana addresses, requirements, and payloads.
package validation

import (
	"fmt"
	"math/big"
	"net/url"
	"regexp"

	x402 "github.com/WeShipHQ/justvibecode"
)

// solanaAddressRegex matches base58 addresses (32-44 chars, base58 charset).
var solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ValidateAtomicAmount validates that an amount string is a valid
// non-negative integer in atomic units. Zero is allowed for
// free-with-signature flows.
func ValidateAtomicAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt := new(big.Int)
	if _, ok := amt.SetString(amount, 10); !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}
	return nil
}

// ValidateAddress validates a Solana base58 address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !solanaAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid Solana address format: %s (expected base58 string 32-44 chars)", address)
	}
	return nil
}

// ValidateResourceURL validates the resource field of a requirement: it must
// be a non-empty absolute URL, since the protocol's trust model compares it
// byte-for-byte against the request URL.
func ValidateResourceURL(resource string) error {
	if resource == "" {
		return fmt.Errorf("resource URL cannot be empty")
	}
	u, err := url.Parse(resource)
	if err != nil {
		return fmt.Errorf("invalid resource URL: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("resource URL must be absolute: %s", resource)
	}
	return nil
}

// ValidatePaymentRequirements performs comprehensive validation of a payment
// requirement: amount, network, addresses, scheme, and timeout.
func ValidatePaymentRequirements(req x402.PaymentRequirements) error {
	switch req.Scheme {
	case x402.SchemeExact:
	case "":
		return fmt.Errorf("invalid requirements: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirements: unsupported scheme %s", req.Scheme)
	}

	if err := x402.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := ValidateAtomicAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirements: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirements: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("invalid requirements: asset %w", err)
	}

	if err := ValidateResourceURL(req.Resource); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirements: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	if req.Extra != nil && req.Extra.FeePayer != "" {
		if err := ValidateAddress(req.Extra.FeePayer); err != nil {
			return fmt.Errorf("invalid requirements: feePayer %w", err)
		}
	}

	return nil
}

// ValidatePaymentPayload validates a decoded payment proof.
func ValidatePaymentPayload(payload x402.PaymentPayload) error {
	if payload.X402Version != x402.X402Version {
		return fmt.Errorf("%w: %d (expected %d)", x402.ErrUnsupportedVersion, payload.X402Version, x402.X402Version)
	}

	if payload.Scheme != x402.SchemeExact {
		return fmt.Errorf("%w: %s", x402.ErrUnsupportedScheme, payload.Scheme)
	}

	if err := x402.ValidateNetwork(payload.Network); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if payload.Payload.Transaction == "" {
		return fmt.Errorf("invalid payload: transaction cannot be empty")
	}

	return nil
}

// ValidatePaymentRequired validates a complete 402 challenge body.
func ValidatePaymentRequired(pr x402.PaymentRequired) error {
	if pr.X402Version != x402.X402Version {
		return fmt.Errorf("%w: %d (expected %d)", x402.ErrUnsupportedVersion, pr.X402Version, x402.X402Version)
	}

	if len(pr.Accepts) == 0 {
		return fmt.Errorf("invalid payment required: accepts cannot be empty")
	}

	for i, req := range pr.Accepts {
		if err := ValidatePaymentRequirements(req); err != nil {
			return fmt.Errorf("invalid payment required: accepts[%d] %w", i, err)
		}
	}

	return nil
}
