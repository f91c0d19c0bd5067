package x402

import (
	"errors"
	"testing"
)

func TestValidateNetwork(t *testing.T) {
	for _, network := range SupportedNetworks {
		if err := ValidateNetwork(network); err != nil {
			t.Errorf("ValidateNetwork(%q) failed: %v", network, err)
		}
	}

	for _, network := range []string{"", "devnet", "mainnet-beta", "eip155:8453"} {
		if err := ValidateNetwork(network); !errors.Is(err, ErrInvalidNetwork) {
			t.Errorf("ValidateNetwork(%q): expected ErrInvalidNetwork, got %v", network, err)
		}
	}
}

func TestChainID(t *testing.T) {
	id, err := ChainID(NetworkSolana)
	if err != nil {
		t.Fatalf("ChainID failed: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty CAIP-2 chain ID")
	}

	if _, err := ChainID("devnet"); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("expected ErrInvalidNetwork, got %v", err)
	}
}
