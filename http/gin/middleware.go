// Package gin provides Gin-compatible middleware for x402 payment gating.
// This package is a thin adapter that translates gin.Context to stdlib http
// patterns and delegates all payment verification and settlement logic to
// the http package's Gate.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/WeShipHQ/justvibecode"
	x402http "github.com/WeShipHQ/justvibecode/http"
)

// SettlementContextKey is the gin context key for the settlement of a paid
// request.
const SettlementContextKey = "x402_settlement"

// NewX402Middleware adapts a payment gate to a Gin handler chain. Requests
// that fail the gate are answered and aborted; paid requests continue down
// the chain with the settlement stored under SettlementContextKey.
func NewX402Middleware(gate *x402http.Gate, pricer x402http.RoutePricer) gin.HandlerFunc {
	middleware := gate.Middleware(pricer)

	return func(c *gin.Context) {
		paid := false

		middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paid = true
			c.Request = r
			if settlement := x402http.SettlementFromContext(r.Context()); settlement != nil {
				c.Set(SettlementContextKey, settlement)
			}
		})).ServeHTTP(c.Writer, c.Request)

		if !paid {
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetSettlementFromContext extracts the settlement recorded for a paid
// request. Returns nil when the request bypassed payment.
func GetSettlementFromContext(c *gin.Context) *x402.SettleResponse {
	value, exists := c.Get(SettlementContextKey)
	if !exists {
		return nil
	}
	settlement, ok := value.(*x402.SettleResponse)
	if !ok {
		return nil
	}
	return settlement
}
