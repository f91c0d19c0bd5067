package x402

import (
	"fmt"
	"strings"
)

// Token is a closed set of tokens the chat route can be priced in. The
// registry below maps each token to a fixed mint address and decimal count
// per cluster, so token choice never turns into stringly-typed lookups
// scattered across the codebase.
type Token string

const (
	TokenUSDC Token = "USDC"
	TokenSOL  Token = "SOL"
)

// Wrapped SOL uses the same mint on every cluster.
const wrappedSOLMint = "So11111111111111111111111111111111111111112"

// tokensByNetwork is the token registry: (cluster, token) -> config.
// USDC mints verified against Circle's published addresses.
var tokensByNetwork = map[string]map[Token]TokenConfig{
	NetworkSolana: {
		TokenUSDC: {
			Address:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Symbol:   "USDC",
			Decimals: 6,
			Priority: 1,
			Name:     "USD Coin",
		},
		TokenSOL: {
			Address:  wrappedSOLMint,
			Symbol:   "SOL",
			Decimals: 9,
			Priority: 2,
			Name:     "Wrapped SOL",
		},
	},
	NetworkSolanaDevnet: {
		TokenUSDC: {
			Address:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
			Symbol:   "USDC",
			Decimals: 6,
			Priority: 1,
			Name:     "USD Coin",
		},
		TokenSOL: {
			Address:  wrappedSOLMint,
			Symbol:   "SOL",
			Decimals: 9,
			Priority: 2,
			Name:     "Wrapped SOL",
		},
	},
}

// ParseToken converts a caller-supplied token symbol (e.g. from the
// X-Payment-Token header) into a Token. Matching is case-insensitive; an
// empty string resolves to USDC, the default charge token.
func ParseToken(s string) (Token, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "USDC":
		return TokenUSDC, nil
	case "SOL":
		return TokenSOL, nil
	default:
		return "", fmt.Errorf("%w: unknown token %q", ErrInvalidToken, s)
	}
}

// TokenFor resolves a token's configuration on the given cluster.
func TokenFor(network string, token Token) (TokenConfig, error) {
	tokens, ok := tokensByNetwork[network]
	if !ok {
		return TokenConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	cfg, ok := tokens[token]
	if !ok {
		return TokenConfig{}, fmt.Errorf("%w: %s on %s", ErrInvalidToken, token, network)
	}
	return cfg, nil
}

// TokenByAddress resolves a token config by mint address. Matching is
// case-sensitive because Solana addresses are base58.
func TokenByAddress(network, address string) (TokenConfig, bool) {
	for _, cfg := range tokensByNetwork[network] {
		if cfg.Address == address {
			return cfg, true
		}
	}
	return TokenConfig{}, false
}

// NetworkTokens returns all registered tokens for a cluster, for configuring
// client signers.
func NetworkTokens(network string) ([]TokenConfig, error) {
	tokens, ok := tokensByNetwork[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	out := make([]TokenConfig, 0, len(tokens))
	for _, t := range []Token{TokenUSDC, TokenSOL} {
		if cfg, ok := tokens[t]; ok {
			out = append(out, cfg)
		}
	}
	return out, nil
}
