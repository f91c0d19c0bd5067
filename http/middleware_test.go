package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	x402 "github.com/WeShipHQ/justvibecode"
	"github.com/WeShipHQ/justvibecode/audit"
)

// mockFacilitator is a scripted facilitator for gate tests. It counts calls
// so tests can assert the gate's sequencing.
type mockFacilitator struct {
	mu            sync.Mutex
	verifyResult  x402.VerifyResponse
	settleResult  x402.SettleResponse
	feePayer      string
	feePayerCalls int
	verifyCalls   int
	settleCalls   int
}

func (m *mockFacilitator) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	return &x402.SupportedResponse{Kinds: []x402.SupportedKind{{
		Scheme:  x402.SchemeExact,
		Network: x402.NetworkSolanaDevnet,
		Extra:   &x402.SchemeExtra{FeePayer: m.feePayer},
	}}}, nil
}

func (m *mockFacilitator) GetFeePayer(ctx context.Context, network string) (string, error) {
	m.mu.Lock()
	m.feePayerCalls++
	m.mu.Unlock()

	if m.feePayer == "" {
		return "", x402.ErrNotSupported
	}
	return m.feePayer, nil
}

func (m *mockFacilitator) countFeePayerCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feePayerCalls
}

func (m *mockFacilitator) VerifyPayment(ctx context.Context, paymentHeader string, requirements x402.PaymentRequirements) x402.VerifyResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	return m.verifyResult
}

func (m *mockFacilitator) SettlePayment(ctx context.Context, paymentHeader string, requirements x402.PaymentRequirements) x402.SettleResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleCalls++
	return m.settleResult
}

// recordingAuditWriter captures records handed over by the gate.
type recordingAuditWriter struct {
	mu      sync.Mutex
	records []audit.Record
}

func (w *recordingAuditWriter) Record(ctx context.Context, rec audit.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return nil
}

func newTestGate(t *testing.T, fac *mockFacilitator, opts ...Option) *Gate {
	t.Helper()
	gate, err := NewGate(GateConfig{
		Network:     x402.NetworkSolanaDevnet,
		Treasury:    testTreasury,
		Facilitator: fac,
	}, opts...)
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	return gate
}

func gatedHandler(gate *Gate, handlerCalls *int) http.Handler {
	pricer := NewTokenHeaderPricer(x402.NetworkSolanaDevnet)
	return gate.Middleware(pricer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*handlerCalls++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"reply":"ok"}`))
	}))
}

func TestGateChallengeWithoutPayment(t *testing.T) {
	fac := &mockFacilitator{feePayer: testFeePayer}
	handlerCalls := 0
	handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

	req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if handlerCalls != 0 {
		t.Errorf("Handler ran without payment")
	}

	var challenge x402.PaymentRequired
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("Challenge body not parseable: %v", err)
	}
	if challenge.X402Version != x402.X402Version {
		t.Errorf("Expected version %d, got %d", x402.X402Version, challenge.X402Version)
	}
	if len(challenge.Accepts) != 1 {
		t.Fatalf("Expected 1 accepts entry, got %d", len(challenge.Accepts))
	}

	accepted := challenge.Accepts[0]
	if accepted.MaxAmountRequired != "10000" {
		t.Errorf("Expected default USDC price 10000, got %s", accepted.MaxAmountRequired)
	}
	if accepted.Resource != "https://example.com/api/chat" {
		t.Errorf("Expected live resource URL, got %s", accepted.Resource)
	}
	if accepted.Extra == nil || accepted.Extra.FeePayer != testFeePayer {
		t.Errorf("Expected fee payer in extra, got %+v", accepted.Extra)
	}
	if challenge.Error != "" {
		t.Errorf("Fresh challenge must not carry an error, got %q", challenge.Error)
	}
}

func TestGateFeePayerCachedAcrossRequests(t *testing.T) {
	// The fee payer resolves once at construction; serving requests must
	// not trigger further facilitator lookups or take any lock on the read
	// path.
	fac := &mockFacilitator{feePayer: testFeePayer}
	handlerCalls := 0
	handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

	if got := fac.countFeePayerCalls(); got != 1 {
		t.Fatalf("Expected fee payer resolved once at construction, got %d lookups", got)
	}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var challenge x402.PaymentRequired
		if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
			t.Fatalf("Challenge body not parseable: %v", err)
		}
		if challenge.Accepts[0].Extra == nil || challenge.Accepts[0].Extra.FeePayer != testFeePayer {
			t.Fatalf("Expected cached fee payer in challenge, got %+v", challenge.Accepts[0].Extra)
		}
	}

	if got := fac.countFeePayerCalls(); got != 1 {
		t.Errorf("Expected cached fee payer to serve all requests, got %d lookups", got)
	}
}

func TestGateFeePayerUnavailable(t *testing.T) {
	// An unresolvable fee payer neither blocks construction nor triggers a
	// lookup per request: failures are cached and challenges go out without
	// extra.feePayer in the meantime.
	fac := &mockFacilitator{feePayer: ""}
	handlerCalls := 0
	handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusPaymentRequired {
			t.Fatalf("Expected 402 challenge, got %d", rec.Code)
		}
		var challenge x402.PaymentRequired
		if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
			t.Fatalf("Challenge body not parseable: %v", err)
		}
		if challenge.Accepts[0].Extra != nil {
			t.Errorf("Expected challenge without extra, got %+v", challenge.Accepts[0].Extra)
		}
	}

	if got := fac.countFeePayerCalls(); got != 1 {
		t.Errorf("Expected one lookup inside the retry interval, got %d", got)
	}
}

func TestGateMalformedProofIsChallenge(t *testing.T) {
	// A garbled proof must produce the same 402 challenge as no proof at
	// all, never a 500, and must not reach the facilitator.
	garbage := []string{
		"!!!not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`[1,2,3]`)),
		"AAAA",
	}

	for _, proof := range garbage {
		fac := &mockFacilitator{feePayer: testFeePayer}
		handlerCalls := 0
		handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

		req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
		req.Header.Set(x402.PaymentHeader, proof)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusPaymentRequired {
			t.Errorf("proof %q: expected 402, got %d", proof, rec.Code)
		}
		if fac.verifyCalls != 0 || fac.settleCalls != 0 {
			t.Errorf("proof %q: facilitator contacted for garbage proof", proof)
		}
		if handlerCalls != 0 {
			t.Errorf("proof %q: handler ran", proof)
		}

		var challenge x402.PaymentRequired
		if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
			t.Errorf("proof %q: body is not a challenge: %v", proof, err)
			continue
		}
		if len(challenge.Accepts) != 1 {
			t.Errorf("proof %q: expected challenge with accepts, got %+v", proof, challenge)
		}
	}
}

func TestGateVerifyFailure(t *testing.T) {
	fac := &mockFacilitator{
		feePayer:     testFeePayer,
		verifyResult: x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInsufficientFunds},
	}
	handlerCalls := 0
	handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

	req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
	req.Header.Set(x402.PaymentHeader, testPaymentHeader(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}

	var failure x402.PaymentFailure
	if err := json.Unmarshal(rec.Body.Bytes(), &failure); err != nil {
		t.Fatalf("Failure body not parseable: %v", err)
	}
	if failure.Error != "Payment verification failed" {
		t.Errorf("Unexpected error message %q", failure.Error)
	}
	if failure.Reason != x402.ReasonInsufficientFunds {
		t.Errorf("Expected reason passthrough, got %q", failure.Reason)
	}

	if fac.settleCalls != 0 {
		t.Errorf("Settle called after failed verification: %d", fac.settleCalls)
	}
	if handlerCalls != 0 {
		t.Error("Handler ran after failed verification")
	}
}

func TestGateSettleFailure(t *testing.T) {
	fac := &mockFacilitator{
		feePayer:     testFeePayer,
		verifyResult: x402.VerifyResponse{IsValid: true},
		settleResult: x402.SettleResponse{
			Success:     false,
			Network:     x402.NetworkSolanaDevnet,
			ErrorReason: x402.ReasonExpiredTransaction,
		},
	}
	handlerCalls := 0
	handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

	req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
	req.Header.Set(x402.PaymentHeader, testPaymentHeader(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}

	var failure x402.PaymentFailure
	if err := json.Unmarshal(rec.Body.Bytes(), &failure); err != nil {
		t.Fatalf("Failure body not parseable: %v", err)
	}
	if failure.Error != "Payment settlement failed" {
		t.Errorf("Unexpected error message %q", failure.Error)
	}
	if failure.Reason != x402.ReasonExpiredTransaction {
		t.Errorf("Expected reason passthrough, got %q", failure.Reason)
	}

	// Settlement failure means zero handler invocations: nothing was
	// delivered for a payment that did not go through.
	if handlerCalls != 0 {
		t.Error("Handler ran after failed settlement")
	}
}

func TestGateSettledRequest(t *testing.T) {
	fac := &mockFacilitator{
		feePayer:     testFeePayer,
		verifyResult: x402.VerifyResponse{IsValid: true},
		settleResult: x402.SettleResponse{
			Success:     true,
			Transaction: "5j7s88ppq6Vb3pkNu9yXFpfFCRSbUNYzGqfbY5mYdPgP",
			Network:     x402.NetworkSolanaDevnet,
		},
	}
	writer := &recordingAuditWriter{}
	handlerCalls := 0

	gate := newTestGate(t, fac, WithAuditWriter(writer))
	pricer := NewTokenHeaderPricer(x402.NetworkSolanaDevnet)
	handler := gate.Middleware(pricer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalls++
		settlement := SettlementFromContext(r.Context())
		if settlement == nil || !settlement.Success {
			t.Error("Expected settlement in request context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
	req.Header.Set(x402.PaymentHeader, testPaymentHeader(t))
	req.Header.Set(x402.WalletAddressHeader, testTreasury)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if handlerCalls != 1 {
		t.Errorf("Expected handler to run once, ran %d times", handlerCalls)
	}
	if fac.verifyCalls != 1 || fac.settleCalls != 1 {
		t.Errorf("Expected one verify and one settle, got %d/%d", fac.verifyCalls, fac.settleCalls)
	}
	if rec.Header().Get(x402.PaymentResponseHeader) == "" {
		t.Error("Expected X-PAYMENT-RESPONSE header")
	}

	if len(writer.records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(writer.records))
	}
	record := writer.records[0]
	if record.TransactionSignature != "5j7s88ppq6Vb3pkNu9yXFpfFCRSbUNYzGqfbY5mYdPgP" {
		t.Errorf("Unexpected audit transaction %s", record.TransactionSignature)
	}
	if record.Token != "USDC" {
		t.Errorf("Expected token symbol USDC, got %s", record.Token)
	}
	if record.Amount != "10000" {
		t.Errorf("Expected amount 10000, got %s", record.Amount)
	}
}

func TestGateUnknownTokenIsBadRequest(t *testing.T) {
	fac := &mockFacilitator{feePayer: testFeePayer}
	handlerCalls := 0
	handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

	req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
	req.Header.Set(x402.PaymentTokenHeader, "DOGE")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown token, got %d", rec.Code)
	}
	if handlerCalls != 0 {
		t.Error("Handler ran for unpriceable request")
	}
}

func TestGateTokenSelection(t *testing.T) {
	fac := &mockFacilitator{feePayer: testFeePayer}
	handlerCalls := 0
	handler := gatedHandler(newTestGate(t, fac), &handlerCalls)

	req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
	req.Header.Set(x402.PaymentTokenHeader, "sol")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var challenge x402.PaymentRequired
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("Challenge body not parseable: %v", err)
	}
	if len(challenge.Accepts) != 1 {
		t.Fatalf("Expected 1 accepts entry, got %d", len(challenge.Accepts))
	}
	if challenge.Accepts[0].MaxAmountRequired != "100000" {
		t.Errorf("Expected SOL price 100000, got %s", challenge.Accepts[0].MaxAmountRequired)
	}
	if challenge.Accepts[0].Asset != "So11111111111111111111111111111111111111112" {
		t.Errorf("Expected wrapped SOL mint, got %s", challenge.Accepts[0].Asset)
	}
}

func TestGatePanicRecovery(t *testing.T) {
	fac := &mockFacilitator{
		feePayer:     testFeePayer,
		verifyResult: x402.VerifyResponse{IsValid: true},
		settleResult: x402.SettleResponse{Success: true, Transaction: "sig", Network: x402.NetworkSolanaDevnet},
	}
	gate := newTestGate(t, fac)
	pricer := NewTokenHeaderPricer(x402.NetworkSolanaDevnet)
	handler := gate.Middleware(pricer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	req := httptest.NewRequest("POST", "https://example.com/api/chat", nil)
	req.Header.Set(x402.PaymentHeader, testPaymentHeader(t))
	rec := httptest.NewRecorder()

	// Must not propagate the panic.
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", rec.Code)
	}
}
