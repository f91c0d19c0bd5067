package http

import (
	"net/http"

	x402 "github.com/WeShipHQ/justvibecode"
	"github.com/WeShipHQ/justvibecode/logger"
	"github.com/WeShipHQ/justvibecode/usage"
)

// WalletFunc identifies the wallet behind a request for free-tier counting.
// Returning "" means the request cannot be attributed and pays like any
// other.
type WalletFunc func(r *http.Request) string

// HeaderWalletFunc reads the wallet from the X-Wallet-Address header,
// falling back to the "wallet" query parameter.
func HeaderWalletFunc(r *http.Request) string {
	if w := r.Header.Get(x402.WalletAddressHeader); w != "" {
		return w
	}
	return r.URL.Query().Get("wallet")
}

// NewFreeTierMiddleware grants each wallet a number of free requests before
// the payment gate applies. The free-tier check runs strictly before the
// gate: a request inside its allowance never produces a challenge, and its
// X-PAYMENT header, if any, is ignored.
//
// Counter failures fail toward charging: when the store is unreachable the
// request falls through to the gate rather than riding free.
func NewFreeTierMiddleware(store usage.Store, limit int, walletFn WalletFunc, log logger.Logger, gate func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if walletFn == nil {
		walletFn = HeaderWalletFunc
	}
	if log == nil {
		log = logger.NoopLogger{}
	}

	return func(next http.Handler) http.Handler {
		gated := gate(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || store == nil {
				gated.ServeHTTP(w, r)
				return
			}

			wallet := walletFn(r)
			if wallet == "" {
				gated.ServeHTTP(w, r)
				return
			}

			used, err := store.Get(r.Context(), wallet)
			if err != nil {
				log.Warn("free-tier lookup failed", map[string]any{
					"wallet": wallet,
					"error":  err.Error(),
				})
				gated.ServeHTTP(w, r)
				return
			}

			if used >= limit {
				gated.ServeHTTP(w, r)
				return
			}

			if _, err := store.Increment(r.Context(), wallet); err != nil {
				log.Warn("free-tier increment failed", map[string]any{
					"wallet": wallet,
					"error":  err.Error(),
				})
				gated.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
