// Package http provides the server-side payment gate and client-side payment
// transport for the x402 protocol, plus the HTTP client for facilitator
// services.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/WeShipHQ/justvibecode"
	"github.com/WeShipHQ/justvibecode/encoding"
	"github.com/WeShipHQ/justvibecode/facilitator"
	"github.com/WeShipHQ/justvibecode/logger"
	"github.com/WeShipHQ/justvibecode/metrics"
	"github.com/WeShipHQ/justvibecode/retry"
)

// AuthorizationProvider is a function that returns an Authorization header value.
// This is useful for dynamic tokens (e.g., JWT refresh) where the value may change.
//
// Thread-safety: The provider function is called on each HTTP request, including
// during retry attempts. If your provider accesses shared state or performs I/O
// (e.g., token refresh), ensure it is safe for concurrent use. The FacilitatorClient
// does not serialize calls to the provider.
type AuthorizationProvider func(*http.Request) string

// FacilitatorClient talks to an x402 facilitator service over HTTP.
//
// VerifyPayment and SettlePayment never return errors: the payment gate must
// answer with a protocol-shaped failure body no matter what goes wrong, so
// every transport, decoding, or facilitator failure collapses into an invalid
// or unsuccessful result carrying a normalized reason string.
type FacilitatorClient struct {
	// BaseURL is the facilitator service URL (e.g., "https://facilitator.payai.network").
	BaseURL string

	// Client is the HTTP client to use for requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeouts contains timeout configuration for payment operations.
	Timeouts x402.TimeoutConfig

	// MaxRetries is the maximum number of retry attempts for failed requests (default: 0).
	// Set to 0 to disable retries. Only facilitator-unavailable failures are retried.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts (default: 100ms).
	// Exponential backoff is applied with a multiplier of 2.0.
	RetryDelay time.Duration

	// Authorization is a static Authorization header value (e.g., "Bearer token").
	// If AuthorizationProvider is also set, the provider takes precedence.
	Authorization string

	// AuthorizationProvider is a function that returns an Authorization header value.
	// If set, this takes precedence over the static Authorization field.
	AuthorizationProvider AuthorizationProvider

	// Logger receives structured logs for facilitator calls. Defaults to no-op.
	Logger logger.Logger

	// Metrics records call counts and latencies. Defaults to no-op.
	Metrics metrics.Recorder
}

// Verify that FacilitatorClient implements facilitator.Interface.
var _ facilitator.Interface = (*FacilitatorClient)(nil)

// NewFacilitatorClient creates a FacilitatorClient with default timeouts.
func NewFacilitatorClient(baseURL string) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:  baseURL,
		Timeouts: x402.DefaultTimeouts,
	}
}

// httpClient returns the HTTP client to use, defaulting to http.DefaultClient.
func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *FacilitatorClient) log() logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.NoopLogger{}
}

func (c *FacilitatorClient) recorder() metrics.Recorder {
	if c.Metrics != nil {
		return c.Metrics
	}
	return metrics.NoopRecorder{}
}

// setAuthorizationHeader sets the Authorization header on the request if configured.
// If AuthorizationProvider is set, it is called to get the current token value;
// otherwise, the static Authorization string is used. This is called per-request.
func (c *FacilitatorClient) setAuthorizationHeader(req *http.Request) {
	var authValue string
	if c.AuthorizationProvider != nil {
		authValue = c.AuthorizationProvider(req)
	} else if c.Authorization != "" {
		authValue = c.Authorization
	}
	if authValue != "" {
		req.Header.Set("Authorization", authValue)
	}
}

// retryConfig returns the retry configuration based on client settings.
func (c *FacilitatorClient) retryConfig() retry.Config {
	retryDelay := c.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return retry.Config{
		MaxAttempts:  maxRetries + 1, // +1 because MaxRetries is retry count, not attempt count
		InitialDelay: retryDelay,
		MaxDelay:     retryDelay * 4,
		Multiplier:   2.0,
	}
}

// Supported queries the facilitator for the schemes and networks it handles.
func (c *FacilitatorClient) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	reqCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeouts.VerifyTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.VerifyTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, "GET", c.BaseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthorizationHeader(httpReq)

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supported endpoint failed: status %d", httpResp.StatusCode)
	}

	var supportedResp x402.SupportedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}

	return &supportedResp, nil
}

// GetFeePayer returns the facilitator's fee payer address for a network. The
// fee payer is advertised under the "exact" scheme entry in /supported.
func (c *FacilitatorClient) GetFeePayer(ctx context.Context, network string) (string, error) {
	supported, err := c.Supported(ctx)
	if err != nil {
		return "", err
	}

	for _, kind := range supported.Kinds {
		if kind.Network != network || kind.Scheme != x402.SchemeExact {
			continue
		}
		if kind.Extra == nil {
			continue
		}
		if feePayer := kind.Extra.FeePayer; feePayer != "" {
			return feePayer, nil
		}
	}

	return "", fmt.Errorf("%w: no fee payer for network %s", x402.ErrNotSupported, network)
}

// VerifyPayment asks the facilitator whether paymentHeader carries a valid
// payment for the given requirements. The header is decoded locally first; a
// malformed header yields an invalid result without a facilitator round trip.
func (c *FacilitatorClient) VerifyPayment(ctx context.Context, paymentHeader string, requirements x402.PaymentRequirements) x402.VerifyResponse {
	start := time.Now()
	defer func() {
		c.recorder().ObserveLatency("verify", time.Since(start), map[string]string{"network": requirements.Network})
	}()

	invalid := x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonUnexpectedVerifyError}

	payload, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		c.log().Warn("payment header decode failed", map[string]any{"error": err.Error()})
		return invalid
	}

	body, err := json.Marshal(facilitator.VerifyRequest{
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return invalid
	}

	resp, err := retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*x402.VerifyResponse, error) {
		reqCtx := ctx
		if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeouts.VerifyTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.VerifyTimeout)
			defer cancel()
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, "POST", c.BaseURL+"/verify", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		c.setAuthorizationHeader(httpReq)

		httpResp, err := c.httpClient().Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return nil, parseErrorResponse(httpResp, x402.ErrVerificationFailed)
		}

		var verifyResp x402.VerifyResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&verifyResp); err != nil {
			return nil, fmt.Errorf("failed to decode verify response: %w", err)
		}

		return &verifyResp, nil
	})
	if err != nil {
		c.log().Error("facilitator verify failed", map[string]any{
			"network": requirements.Network,
			"error":   err.Error(),
		})
		return invalid
	}

	return *resp
}

// SettlePayment asks the facilitator to countersign and submit the payment
// transaction. Any failure produces an unsuccessful result whose Network
// echoes the requirements so the caller can still report it.
func (c *FacilitatorClient) SettlePayment(ctx context.Context, paymentHeader string, requirements x402.PaymentRequirements) x402.SettleResponse {
	start := time.Now()
	defer func() {
		c.recorder().ObserveLatency("settle", time.Since(start), map[string]string{"network": requirements.Network})
	}()

	failure := x402.SettleResponse{
		Success:     false,
		Transaction: "",
		Network:     requirements.Network,
		ErrorReason: x402.ReasonUnexpectedSettleError,
	}

	payload, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		c.log().Warn("payment header decode failed", map[string]any{"error": err.Error()})
		return failure
	}

	body, err := json.Marshal(facilitator.SettleRequest{
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return failure
	}

	resp, err := retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*x402.SettleResponse, error) {
		reqCtx := ctx
		if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeouts.SettleTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.SettleTimeout)
			defer cancel()
		}

		httpReq, err := http.NewRequestWithContext(reqCtx, "POST", c.BaseURL+"/settle", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		c.setAuthorizationHeader(httpReq)

		httpResp, err := c.httpClient().Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return nil, parseErrorResponse(httpResp, x402.ErrSettlementFailed)
		}

		var settleResp x402.SettleResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&settleResp); err != nil {
			return nil, fmt.Errorf("failed to decode settle response: %w", err)
		}

		return &settleResp, nil
	})
	if err != nil {
		c.log().Error("facilitator settle failed", map[string]any{
			"network": requirements.Network,
			"error":   err.Error(),
		})
		return failure
	}

	if resp.Network == "" {
		resp.Network = requirements.Network
	}

	return *resp
}

// parseErrorResponse extracts error details from a non-200 HTTP response.
func parseErrorResponse(resp *http.Response, baseErr error) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	// Try to parse as JSON with invalidReason or errorReason.
	var errBody map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &errBody); err == nil {
		if reason, ok := errBody["invalidReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
		if reason, ok := errBody["errorReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
	}

	if len(bodyBytes) > 0 && len(bodyBytes) < 500 {
		return fmt.Errorf("%w: status %d, body: %s", baseErr, resp.StatusCode, string(bodyBytes))
	}

	return fmt.Errorf("%w: status %d", baseErr, resp.StatusCode)
}

// isFacilitatorUnavailableError checks if an error is a facilitator unavailable error.
// It uses errors.Is to properly detect wrapped errors.
func isFacilitatorUnavailableError(err error) bool {
	return errors.Is(err, x402.ErrFacilitatorUnavailable)
}
