package x402

import "fmt"

// Supported Solana cluster names. The protocol uses these short names on the
// wire; CAIP-2 genesis-hash identifiers are available for interop via
// ChainID.
const (
	NetworkSolana       = "solana"
	NetworkSolanaDevnet = "solana-devnet"
)

// SupportedNetworks lists every cluster this module can gate payments on.
var SupportedNetworks = []string{NetworkSolana, NetworkSolanaDevnet}

// chainIDByNetwork maps cluster names to CAIP-2 identifiers (genesis hash).
var chainIDByNetwork = map[string]string{
	NetworkSolana:       "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
	NetworkSolanaDevnet: "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
}

// ValidateNetwork reports whether network names a supported Solana cluster.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("%w: network cannot be empty", ErrInvalidNetwork)
	}
	if _, ok := chainIDByNetwork[network]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return nil
}

// ChainID returns the CAIP-2 identifier for a cluster name.
func ChainID(network string) (string, error) {
	id, ok := chainIDByNetwork[network]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return id, nil
}
