package chains

import "fmt"

// Chain identifies a blockchain network supported for transfers.
type Chain string

// Supported blockchain networks
const (
	Ethereum Chain = "ethereum"
	Base     Chain = "base"
	Polygon  Chain = "polygon"
	Arbitrum Chain = "arbitrum"
)

// Config holds the protocol parameters for a supported chain.
type Config struct {
	Name             string
	BlockTimeSeconds float64
	ChainID          int64
	ExplorerURL      string
}

// all is the closed set of supported chains in canonical order. Quote
// ranking falls back to this order on full ties, so it must be stable.
var all = []Chain{Ethereum, Base, Polygon, Arbitrum}

var configs = map[Chain]Config{
	Ethereum: {
		Name:             "Ethereum",
		BlockTimeSeconds: 12,
		ChainID:          1,
		ExplorerURL:      "https://etherscan.io",
	},
	Base: {
		Name:             "Base",
		BlockTimeSeconds: 2,
		ChainID:          8453,
		ExplorerURL:      "https://basescan.org",
	},
	Polygon: {
		Name:             "Polygon",
		BlockTimeSeconds: 2,
		ChainID:          137,
		ExplorerURL:      "https://polygonscan.com",
	},
	Arbitrum: {
		Name:             "Arbitrum",
		BlockTimeSeconds: 0.25,
		ChainID:          42161,
		ExplorerURL:      "https://arbiscan.io",
	},
}

// All returns the supported chains in canonical order.
func All() []Chain {
	out := make([]Chain, len(all))
	copy(out, all)
	return out
}

// ConfigOf returns the protocol parameters for a chain. Calling it with a
// chain outside the supported set is a programming error and panics;
// callers must validate inbound values with Valid first.
func ConfigOf(chain Chain) Config {
	cfg, ok := configs[chain]
	if !ok {
		panic(fmt.Sprintf("unsupported chain: %s", chain))
	}
	return cfg
}

// Valid reports whether the given value names a supported chain.
func Valid(chain Chain) bool {
	_, ok := configs[chain]
	return ok
}

// Parse converts a raw string into a supported Chain.
func Parse(raw string) (Chain, error) {
	chain := Chain(raw)
	if !Valid(chain) {
		return "", fmt.Errorf("invalid chain: %q", raw)
	}
	return chain, nil
}

// Index returns the position of a chain in canonical order, used as the
// final tie-break when ranking quotes.
func Index(chain Chain) int {
	for i, c := range all {
		if c == chain {
			return i
		}
	}
	return len(all)
}
