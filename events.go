package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a payment lifecycle event, emitted by the client
// transport for logging and monitoring.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// URL is the protected resource being accessed.
	URL string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the token mint address.
	Asset string

	// Network is the Solana cluster name.
	Network string

	// Scheme is the payment scheme (always "exact").
	Scheme string

	// Recipient is the payment recipient address.
	Recipient string

	// Transaction is the on-chain signature (available on success).
	Transaction string

	// Error contains error details (available on failure).
	Error error

	// Duration is the time taken for the payment exchange.
	Duration time.Duration
}

// PaymentCallback handles payment events. Callbacks are invoked
// synchronously during payment processing and should return quickly.
type PaymentCallback func(PaymentEvent)
