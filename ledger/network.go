package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenInfo describes a fungible token accepted as loan currency.
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// NetworkContext pins the contract addresses and supported tokens for one
// chain. It is immutable per session and re-resolved on chain-switch events.
type NetworkContext struct {
	ChainID         uint64
	LendingContract common.Address
	TokenRegistry   common.Address
	Tokens          []TokenInfo
}

// Token looks up a supported token by address.
func (n NetworkContext) Token(addr common.Address) (TokenInfo, bool) {
	for _, t := range n.Tokens {
		if t.Address == addr {
			return t, true
		}
	}
	return TokenInfo{}, false
}

// TokenBySymbol looks up a supported token by its (case-insensitive) symbol.
func (n NetworkContext) TokenBySymbol(symbol string) (TokenInfo, bool) {
	needle := strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range n.Tokens {
		if strings.ToUpper(t.Symbol) == needle {
			return t, true
		}
	}
	return TokenInfo{}, false
}

// Registry resolves the NetworkContext for a chain id. Chain switches in the
// wallet go through here so stale contract addresses never survive a switch.
type Registry struct {
	networks map[uint64]NetworkContext
}

// NewRegistry builds a registry from the configured networks.
func NewRegistry(networks []NetworkContext) *Registry {
	byID := make(map[uint64]NetworkContext, len(networks))
	for _, n := range networks {
		byID[n.ChainID] = n
	}
	return &Registry{networks: byID}
}

// Resolve returns the context for the chain id or an error naming the id so
// the caller can surface a network-mismatch message.
func (r *Registry) Resolve(chainID uint64) (NetworkContext, error) {
	if r == nil {
		return NetworkContext{}, fmt.Errorf("network registry not initialised")
	}
	ctx, ok := r.networks[chainID]
	if !ok {
		return NetworkContext{}, fmt.Errorf("unsupported chain id %d", chainID)
	}
	return ctx, nil
}

// Supported lists the chain ids the registry knows about.
func (r *Registry) Supported() []uint64 {
	if r == nil {
		return nil
	}
	ids := make([]uint64, 0, len(r.networks))
	for id := range r.networks {
		ids = append(ids, id)
	}
	return ids
}
