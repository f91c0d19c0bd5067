package http

import (
	"math/big"
	"net/http"
	"time"

	x402 "github.com/WeShipHQ/justvibecode"
	"github.com/WeShipHQ/justvibecode/http/internal/helpers"
	"github.com/WeShipHQ/justvibecode/signers/svm"
)

// X402Transport is a RoundTripper that handles x402 payment flows. It wraps
// an existing http.RoundTripper; when a request comes back 402 it signs a
// payment for one of the challenge's accepted requirements and retries the
// request exactly once.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Signer signs payments. Requests that draw a 402 fail when nil.
	Signer *svm.Signer

	// MaxPaymentAmount caps the atomic amount the transport will pay per
	// request. Requirements above the cap fail before any signing happens.
	// Nil means no cap beyond the signer's own limit.
	MaxPaymentAmount *big.Int

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt x402.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess x402.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper. The first attempt goes out without
// payment; a 402 response triggers requirement selection, a spending-cap
// check, signing, and a single paid retry. Any non-402 response passes
// through untouched.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	paymentReq, err := helpers.ParsePaymentRequired(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	// Retrying means replaying the body. Establish that before committing
	// to a payment; paying for a request we cannot resend wastes money.
	if req.Body != nil && req.GetBody == nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "request body cannot be replayed for paid retry", x402.ErrBodyNotReplayable)
	}

	requirements, err := t.selectRequirements(paymentReq.Accepts)
	if err != nil {
		t.emitFailure(req, nil, err, 0)
		return nil, err
	}

	startTime := time.Now()
	t.emit(t.OnPaymentAttempt, x402.PaymentEvent{
		Type:      x402.PaymentEventAttempt,
		Timestamp: startTime,
		URL:       req.URL.String(),
		Amount:    requirements.MaxAmountRequired,
		Asset:     requirements.Asset,
		Network:   requirements.Network,
		Scheme:    requirements.Scheme,
		Recipient: requirements.PayTo,
	})

	payment, err := t.Signer.Sign(req.Context(), requirements)
	if err != nil {
		t.emitFailure(req, requirements, err, time.Since(startTime))
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to sign payment", err)
	}

	paymentHeader, err := helpers.BuildPaymentHeader(payment)
	if err != nil {
		t.emitFailure(req, requirements, err, time.Since(startTime))
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build payment header", err)
	}

	reqRetry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			t.emitFailure(req, requirements, err, time.Since(startTime))
			return nil, x402.NewPaymentError(x402.ErrCodeNetworkError, "failed to replay request body", err)
		}
		reqRetry.Body = body
	}
	reqRetry.Header.Set(x402.PaymentHeader, paymentHeader)

	respRetry, err := base.RoundTrip(reqRetry)
	duration := time.Since(startTime)
	if err != nil {
		t.emitFailure(req, requirements, err, duration)
		return nil, err
	}

	settlement := helpers.ParseSettlement(respRetry.Header.Get(x402.PaymentResponseHeader))
	if settlement != nil && settlement.Success {
		t.emit(t.OnPaymentSuccess, x402.PaymentEvent{
			Type:        x402.PaymentEventSuccess,
			Timestamp:   time.Now(),
			URL:         req.URL.String(),
			Amount:      requirements.MaxAmountRequired,
			Asset:       requirements.Asset,
			Network:     requirements.Network,
			Scheme:      requirements.Scheme,
			Recipient:   requirements.PayTo,
			Transaction: settlement.Transaction,
			Duration:    duration,
		})
	}

	return respRetry, nil
}

// selectRequirements picks the first challenge entry the signer can satisfy
// and enforces the transport's spending cap before any signing happens.
func (t *X402Transport) selectRequirements(accepts []x402.PaymentRequirements) (*x402.PaymentRequirements, error) {
	if t.Signer == nil {
		return nil, x402.NewPaymentError(x402.ErrCodeNoCompatibleWallet, "no signer configured", x402.ErrNoCompatibleWallet)
	}

	for i := range accepts {
		requirements := &accepts[i]
		if !t.Signer.CanSign(requirements) {
			continue
		}

		if t.MaxPaymentAmount != nil {
			amount, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
			if !ok {
				return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "unparseable payment amount", x402.ErrInvalidAmount)
			}
			if amount.Cmp(t.MaxPaymentAmount) > 0 {
				return nil, x402.NewPaymentError(x402.ErrCodeAmountExceeded, "payment amount exceeds configured limit", x402.ErrPaymentLimitExceeded).
					WithDetails("amount", requirements.MaxAmountRequired).
					WithDetails("limit", t.MaxPaymentAmount.String())
			}
		}

		return requirements, nil
	}

	return nil, x402.NewPaymentError(x402.ErrCodeNoCompatibleWallet, "no requirement matches the configured signer", x402.ErrNoCompatibleWallet)
}

func (t *X402Transport) emit(cb x402.PaymentCallback, event x402.PaymentEvent) {
	if cb != nil {
		cb(event)
	}
}

func (t *X402Transport) emitFailure(req *http.Request, requirements *x402.PaymentRequirements, err error, duration time.Duration) {
	if t.OnPaymentFailure == nil {
		return
	}

	event := x402.PaymentEvent{
		Type:      x402.PaymentEventFailure,
		Timestamp: time.Now(),
		URL:       req.URL.String(),
		Error:     err,
		Duration:  duration,
	}
	if requirements != nil {
		event.Amount = requirements.MaxAmountRequired
		event.Asset = requirements.Asset
		event.Network = requirements.Network
		event.Scheme = requirements.Scheme
		event.Recipient = requirements.PayTo
	}
	t.OnPaymentFailure(event)
}
