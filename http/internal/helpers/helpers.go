// Package helpers provides internal HTTP utilities for x402 protocol handling.
package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	x402 "github.com/WeShipHQ/justvibecode"
	"github.com/WeShipHQ/justvibecode/encoding"
)

// ErrNilSettlement is returned when settlement is nil in AddPaymentResponseHeader.
var ErrNilSettlement = errors.New("settlement is nil")

// ErrNilPayment is returned when payment is nil in BuildPaymentHeader.
var ErrNilPayment = errors.New("payment is nil")

// SendPaymentRequired writes a 402 Payment Required challenge body. The error
// message is omitted from the JSON when empty.
func SendPaymentRequired(w http.ResponseWriter, requirements []x402.PaymentRequirements, errMsg string) error {
	response := x402.PaymentRequired{
		X402Version: x402.X402Version,
		Accepts:     requirements,
		Error:       errMsg,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("encoding PaymentRequired response: %w", err)
	}
	return nil
}

// SendPaymentFailure writes a 402 with the post-proof failure shape: a fixed
// error message plus the normalized reason.
func SendPaymentFailure(w http.ResponseWriter, message, reason string) error {
	response := x402.PaymentFailure{
		Error:  message,
		Reason: reason,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("encoding PaymentFailure response: %w", err)
	}
	return nil
}

// AddPaymentResponseHeader adds the X-PAYMENT-RESPONSE header with settlement information.
// Returns an error if settlement is nil or encoding fails.
func AddPaymentResponseHeader(w http.ResponseWriter, settlement *x402.SettleResponse) error {
	if settlement == nil {
		return fmt.Errorf("AddPaymentResponseHeader: %w", ErrNilSettlement)
	}
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return fmt.Errorf("AddPaymentResponseHeader: encode settlement: %w", err)
	}
	w.Header().Set(x402.PaymentResponseHeader, encoded)
	return nil
}

// ParsePaymentRequired extracts the challenge body from a 402 response.
// Returns an error if resp or resp.Body is nil.
func ParsePaymentRequired(resp *http.Response) (*x402.PaymentRequired, error) {
	if resp == nil || resp.Body == nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "missing response or body", x402.ErrInvalidRequirements)
	}

	var paymentReq x402.PaymentRequired
	if err := json.NewDecoder(resp.Body).Decode(&paymentReq); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "failed to decode payment requirements", err)
	}

	if len(paymentReq.Accepts) == 0 {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "no payment requirements in response", x402.ErrInvalidRequirements)
	}

	return &paymentReq, nil
}

// ParseSettlement extracts settlement information from the X-PAYMENT-RESPONSE header.
// Returns nil if the header is empty or cannot be parsed.
func ParseSettlement(headerValue string) *x402.SettleResponse {
	if headerValue == "" {
		return nil
	}

	settlement, err := encoding.DecodeSettlement(headerValue)
	if err != nil {
		return nil
	}

	return &settlement
}

// BuildPaymentHeader creates the X-PAYMENT header value from a PaymentPayload.
// Returns an error if payment is nil or encoding fails.
func BuildPaymentHeader(payment *x402.PaymentPayload) (string, error) {
	if payment == nil {
		return "", fmt.Errorf("BuildPaymentHeader: %w", ErrNilPayment)
	}
	encoded, err := encoding.EncodePayment(*payment)
	if err != nil {
		return "", fmt.Errorf("BuildPaymentHeader: encode payment: %w", err)
	}
	return encoded, nil
}

// BuildResourceURL constructs the full URL for the protected resource from the request.
func BuildResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.RequestURI
}

// ResolveResourceURL returns the resource URL to advertise in a challenge.
// A configured absolute URL wins; a configured path is joined with the
// request's origin; otherwise the request URL is used as-is.
func ResolveResourceURL(r *http.Request, configured string) string {
	if configured == "" {
		return BuildResourceURL(r)
	}
	if strings.Contains(configured, "://") {
		return configured
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	path := configured
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + r.Host + path
}
