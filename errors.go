package x402

import "errors"

// Sentinel errors for payment operations.
var (
	// ErrInvalidAmount indicates an amount string that is not a valid
	// non-negative decimal, or one that does not divide evenly into atomic
	// units.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidNetwork indicates an unsupported Solana cluster name.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidToken indicates an unknown token or bad token configuration.
	ErrInvalidToken = errors.New("x402: invalid token configuration")

	// ErrInvalidRequirements indicates payment requirements that fail
	// structural validation.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrMalformedHeader indicates an X-PAYMENT header that is not valid
	// base64-encoded JSON.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an x402 protocol version other than 1.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrUnsupportedScheme indicates a payment scheme other than "exact".
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")

	// ErrFacilitatorUnavailable indicates the facilitator service could not
	// be reached at the transport level.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrVerificationFailed indicates the facilitator /verify endpoint
	// returned a non-200 status.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates the facilitator /settle endpoint
	// returned a non-200 status.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrNotSupported indicates the facilitator cannot service the requested
	// network and scheme combination. This is a deployment configuration
	// problem, caught at startup in practice.
	ErrNotSupported = errors.New("x402: network and scheme not supported by facilitator")

	// ErrPaymentLimitExceeded indicates the server demanded more than the
	// client's configured per-call ceiling. The payment is aborted before
	// any signing occurs, never silently capped.
	ErrPaymentLimitExceeded = errors.New("x402: payment amount exceeds per-call limit")

	// ErrNoCompatibleWallet indicates no signer can satisfy any of the
	// server's payment requirements.
	ErrNoCompatibleWallet = errors.New("x402: no wallet can satisfy payment requirements")

	// ErrSigningFailed indicates the wallet failed to sign the payment
	// transaction.
	ErrSigningFailed = errors.New("x402: payment signing failed")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrNoTokens indicates no tokens are configured for the signer.
	ErrNoTokens = errors.New("x402: no tokens configured")

	// ErrBodyNotReplayable indicates the original request carries a body
	// that cannot be re-read for the paid retry.
	ErrBodyNotReplayable = errors.New("x402: request body cannot be replayed")
)

// Facilitator-reported failure reasons. These strings travel the full round
// trip unmodified so client UIs can map them to remediation guidance.
const (
	ReasonInsufficientFunds     = "insufficient_funds"
	ReasonInvalidSignature      = "invalid_signature"
	ReasonExpiredTransaction    = "expired_transaction"
	ReasonInvalidAmount         = "invalid_amount"
	ReasonNetworkMismatch       = "network_mismatch"
	ReasonUnexpectedVerifyError = "unexpected_verify_error"
	ReasonUnexpectedSettleError = "unexpected_settle_error"
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeNoCompatibleWallet indicates no signer can satisfy requirements.
	ErrCodeNoCompatibleWallet ErrorCode = "NO_COMPATIBLE_WALLET"

	// ErrCodeAmountExceeded indicates payment exceeds the per-call ceiling.
	ErrCodeAmountExceeded ErrorCode = "AMOUNT_EXCEEDED"

	// ErrCodeInvalidRequirements indicates invalid server requirements.
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"

	// ErrCodeSigningFailed indicates a signing operation failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeNetworkError indicates a network communication error.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"

	// ErrCodeUnsupportedScheme indicates an unsupported scheme or network.
	ErrCodeUnsupportedScheme ErrorCode = "UNSUPPORTED_SCHEME"

	// ErrCodeUnsupportedVersion indicates an unsupported protocol version.
	ErrCodeUnsupportedVersion ErrorCode = "UNSUPPORTED_VERSION"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
