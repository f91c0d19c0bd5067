package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	x402 "github.com/WeShipHQ/justvibecode"
	"github.com/WeShipHQ/justvibecode/audit"
	"github.com/WeShipHQ/justvibecode/encoding"
	"github.com/WeShipHQ/justvibecode/facilitator"
	"github.com/WeShipHQ/justvibecode/http/internal/helpers"
	"github.com/WeShipHQ/justvibecode/logger"
	"github.com/WeShipHQ/justvibecode/metrics"
)

// contextKey is a private type for context values set by the gate.
type contextKey string

// settlementContextKey carries the *x402.SettleResponse for a paid request.
const settlementContextKey contextKey = "x402-settlement"

// verifyFailedMessage is the fixed error message for verification failures.
const verifyFailedMessage = "Payment verification failed"

// settleFailedMessage is the fixed error message for settlement failures.
const settleFailedMessage = "Payment settlement failed"

// feePayerRetryInterval is the minimum gap between fee payer lookups after a
// failed attempt, so a down facilitator costs one round trip per interval
// instead of one per request.
const feePayerRetryInterval = 30 * time.Second

// RoutePricer decides the price of a request. It returns the route
// configuration to charge, or an error when the request asks for something
// the route cannot price (an unknown payment token, for example).
type RoutePricer interface {
	Route(r *http.Request) (*x402.RouteConfig, error)
}

// RoutePricerFunc adapts a function to the RoutePricer interface.
type RoutePricerFunc func(r *http.Request) (*x402.RouteConfig, error)

// Route calls f(r).
func (f RoutePricerFunc) Route(r *http.Request) (*x402.RouteConfig, error) {
	return f(r)
}

// NewTokenHeaderPricer prices requests by the X-Payment-Token header: the
// client names a token symbol and the route charges that token's default
// message price. An unknown symbol is a pricing error that surfaces as a 400.
func NewTokenHeaderPricer(network string) RoutePricer {
	return RoutePricerFunc(func(r *http.Request) (*x402.RouteConfig, error) {
		token, err := x402.ParseToken(r.Header.Get(x402.PaymentTokenHeader))
		if err != nil {
			return nil, err
		}
		route, err := x402.NewChatRouteConfig(network, token)
		if err != nil {
			return nil, err
		}
		return &route, nil
	})
}

// StaticPricer returns a RoutePricer that charges the same route config for
// every request.
func StaticPricer(route x402.RouteConfig) RoutePricer {
	return RoutePricerFunc(func(*http.Request) (*x402.RouteConfig, error) {
		return &route, nil
	})
}

// GateConfig configures a payment gate.
type GateConfig struct {
	// Network is the Solana cluster payments settle on.
	Network string

	// Treasury is the merchant wallet that receives payments.
	Treasury string

	// FacilitatorURL is the base URL of the facilitator service. Ignored
	// when Facilitator is set directly.
	FacilitatorURL string

	// Facilitator overrides the HTTP facilitator client, mainly for tests.
	Facilitator facilitator.Interface
}

// Gate enforces payment on HTTP handlers. Requests without a valid payment
// proof receive a 402 challenge listing the accepted payment requirements;
// requests with a proof are verified and settled against the facilitator
// before the wrapped handler runs.
type Gate struct {
	network     string
	treasury    string
	facilitator facilitator.Interface
	log         logger.Logger
	recorder    metrics.Recorder
	auditWriter audit.Writer

	// feePayers holds an immutable snapshot of resolved fee payers keyed by
	// network. Readers load it without locking; refreshes publish a fresh
	// copy. The zero snapshot (nil) means nothing resolved yet.
	feePayers atomic.Pointer[map[string]string]

	// refreshMu gates refresh scheduling only. It is never held across the
	// facilitator round trip.
	refreshMu   sync.Mutex
	refreshing  bool
	nextRefresh time.Time
}

// NewGate creates a payment gate.
func NewGate(cfg GateConfig, opts ...Option) (*Gate, error) {
	if err := x402.ValidateNetwork(cfg.Network); err != nil {
		return nil, err
	}
	if cfg.Treasury == "" {
		return nil, x402.ErrInvalidRequirements
	}

	fac := cfg.Facilitator
	if fac == nil {
		if cfg.FacilitatorURL == "" {
			return nil, x402.ErrFacilitatorUnavailable
		}
		fac = NewFacilitatorClient(cfg.FacilitatorURL)
	}

	g := &Gate{
		network:     cfg.Network,
		treasury:    cfg.Treasury,
		facilitator: fac,
		log:         logger.NoopLogger{},
		recorder:    metrics.NoopRecorder{},
		auditWriter: audit.NoopWriter{},
	}

	for _, opt := range opts {
		opt(g)
	}

	// Wire observability into our own facilitator client when the caller
	// did not bring one.
	if fc, ok := fac.(*FacilitatorClient); ok && cfg.Facilitator == nil {
		if fc.Logger == nil {
			fc.Logger = g.log
		}
		if fc.Metrics == nil {
			fc.Metrics = g.recorder
		}
	}

	// Resolve the fee payer up front so the first challenge can advertise
	// it. Failure is not fatal; requests trigger background retries.
	g.refreshFeePayers(context.Background())

	return g, nil
}

// feePayer returns the cached fee payer for the gate's network. The read is
// lock free; a cache miss schedules a background refresh and returns "", so
// the challenge omits extra.feePayer and the client pays its own fees until
// the lookup lands.
func (g *Gate) feePayer() string {
	if snapshot := g.feePayers.Load(); snapshot != nil {
		if fp, ok := (*snapshot)[g.network]; ok {
			return fp
		}
	}
	g.scheduleFeePayerRefresh()
	return ""
}

// scheduleFeePayerRefresh starts a background lookup unless one is already
// in flight or the last attempt failed too recently. Inbound requests never
// wait on the facilitator round trip.
func (g *Gate) scheduleFeePayerRefresh() {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	if g.refreshing || time.Now().Before(g.nextRefresh) {
		return
	}
	g.refreshing = true
	go g.refreshFeePayers(context.Background())
}

// refreshFeePayers resolves the fee payer for the gate's network and
// publishes a new snapshot. The snapshot swap is atomic; concurrent readers
// keep the old one until the store completes.
func (g *Gate) refreshFeePayers(ctx context.Context) {
	fp, err := g.facilitator.GetFeePayer(ctx, g.network)

	g.refreshMu.Lock()
	g.refreshing = false
	g.nextRefresh = time.Now().Add(feePayerRetryInterval)
	g.refreshMu.Unlock()

	if err != nil {
		g.log.Warn("fee payer lookup failed", map[string]any{
			"network": g.network,
			"error":   err.Error(),
		})
		return
	}

	next := map[string]string{g.network: fp}
	if prev := g.feePayers.Load(); prev != nil {
		for network, payer := range *prev {
			if _, ok := next[network]; !ok {
				next[network] = payer
			}
		}
	}
	g.feePayers.Store(&next)
}

// ExtractPayment returns the payment proof from the X-PAYMENT header, or ""
// when the header is absent or does not decode to a payment payload. A
// garbled proof is indistinguishable from no proof: both produce a fresh
// challenge rather than an error.
func (g *Gate) ExtractPayment(r *http.Request) string {
	header := r.Header.Get(x402.PaymentHeader)
	if header == "" {
		return ""
	}
	if _, err := encoding.DecodePayment(header); err != nil {
		g.log.Debug("discarding malformed payment header", map[string]any{
			"error": err.Error(),
		})
		return ""
	}
	return header
}

// CreatePaymentRequirements builds the requirements advertised in a
// challenge for the given route and request.
func (g *Gate) CreatePaymentRequirements(r *http.Request, route *x402.RouteConfig) (*x402.PaymentRequirements, error) {
	builder := x402.RequirementsBuilder{
		PayTo:    g.treasury,
		FeePayer: g.feePayer(),
	}

	resourceURL := helpers.ResolveResourceURL(r, route.Config.Resource)
	requirements, err := builder.Build(*route, resourceURL)
	if err != nil {
		return nil, err
	}
	return &requirements, nil
}

// Middleware wraps a handler with the payment gate. The pricer decides what
// each request costs; requests reach the wrapped handler only after their
// payment has been verified and settled.
func (g *Gate) Middleware(pricer RoutePricer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// A panic below the gate must not leak a paid-for response
			// or a stack trace to the client.
			defer func() {
				if rec := recover(); rec != nil {
					g.log.Error("payment gate panic", map[string]any{"panic": rec})
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()

			route, err := pricer.Route(r)
			if err != nil {
				g.log.Warn("request not priceable", map[string]any{
					"path":  r.URL.Path,
					"error": err.Error(),
				})
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			requirements, err := g.CreatePaymentRequirements(r, route)
			if err != nil {
				g.log.Error("building payment requirements failed", map[string]any{
					"path":  r.URL.Path,
					"error": err.Error(),
				})
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			proof := g.ExtractPayment(r)
			if proof == "" {
				g.recorder.IncCounter("challenge", map[string]string{"network": g.network})
				if err := helpers.SendPaymentRequired(w, []x402.PaymentRequirements{*requirements}, ""); err != nil {
					g.log.Error("writing challenge failed", map[string]any{"error": err.Error()})
				}
				return
			}

			start := time.Now()
			verify := g.facilitator.VerifyPayment(r.Context(), proof, *requirements)
			if !verify.IsValid {
				reason := verify.InvalidReason
				if reason == "" {
					reason = x402.ReasonUnexpectedVerifyError
				}
				g.recorder.IncCounter("verify_failed", map[string]string{"network": g.network})
				g.log.Info("payment verification failed", map[string]any{
					"network": g.network,
					"reason":  reason,
				})
				if err := helpers.SendPaymentFailure(w, verifyFailedMessage, reason); err != nil {
					g.log.Error("writing failure response failed", map[string]any{"error": err.Error()})
				}
				return
			}

			settlement := g.facilitator.SettlePayment(r.Context(), proof, *requirements)
			if !settlement.Success {
				reason := settlement.ErrorReason
				if reason == "" {
					reason = x402.ReasonUnexpectedSettleError
				}
				g.recorder.IncCounter("settle_failed", map[string]string{"network": g.network})
				g.log.Info("payment settlement failed", map[string]any{
					"network": g.network,
					"reason":  reason,
				})
				if err := helpers.SendPaymentFailure(w, settleFailedMessage, reason); err != nil {
					g.log.Error("writing failure response failed", map[string]any{"error": err.Error()})
				}
				return
			}

			g.recorder.IncCounter("settled", map[string]string{"network": g.network})
			g.recorder.ObserveLatency("gate", time.Since(start), map[string]string{"network": g.network})
			g.log.Info("payment settled", map[string]any{
				"network":     settlement.Network,
				"transaction": settlement.Transaction,
				"amount":      requirements.MaxAmountRequired,
				"asset":       requirements.Asset,
			})

			g.recordAudit(r, requirements, verify, settlement)

			if err := helpers.AddPaymentResponseHeader(w, &settlement); err != nil {
				g.log.Warn("adding payment response header failed", map[string]any{"error": err.Error()})
			}

			ctx := context.WithValue(r.Context(), settlementContextKey, &settlement)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// recordAudit persists a settled payment. Audit failures are logged and
// swallowed: the payment already went through, so the client gets its
// response either way.
func (g *Gate) recordAudit(r *http.Request, requirements *x402.PaymentRequirements, verify x402.VerifyResponse, settlement x402.SettleResponse) {
	tokenSymbol := requirements.Asset
	if tc, ok := x402.TokenByAddress(g.network, requirements.Asset); ok {
		tokenSymbol = tc.Symbol
	}

	rec := audit.Record{
		WalletAddress:        r.Header.Get(x402.WalletAddressHeader),
		TransactionSignature: settlement.Transaction,
		Network:              settlement.Network,
		Token:                tokenSymbol,
		Amount:               requirements.MaxAmountRequired,
		ResourceURL:          requirements.Resource,
		Verify:               verify,
		Settle:               settlement,
		CreatedAt:            time.Now().UTC(),
	}

	if err := g.auditWriter.Record(r.Context(), rec); err != nil {
		g.log.Warn("audit write failed", map[string]any{
			"transaction": settlement.Transaction,
			"error":       err.Error(),
		})
	}
}

// SettlementFromContext returns the settlement recorded by the gate for a
// paid request, or nil for requests that bypassed payment.
func SettlementFromContext(ctx context.Context) *x402.SettleResponse {
	settlement, _ := ctx.Value(settlementContextKey).(*x402.SettleResponse)
	return settlement
}
