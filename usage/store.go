// Package usage tracks per-wallet message counts for the free-tier bypass.
//
// The payment gate itself knows nothing about free messages: eligibility is
// a precondition checked before the gate is invoked, which keeps the
// protocol's trust boundary clean. This package only provides the keyed
// counter store that decision reads from.
package usage

import "context"

// Store is a keyed counter: wallet address to message count.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the recorded message count for a wallet. Unknown wallets
	// count as zero.
	Get(ctx context.Context, wallet string) (int, error)

	// Increment records one more message for a wallet and returns the new
	// count.
	Increment(ctx context.Context, wallet string) (int, error)

	// Reset clears the count for a wallet.
	Reset(ctx context.Context, wallet string) error
}
