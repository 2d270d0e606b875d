package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest describes an unsigned contract call the wallet provider is asked
// to sign and broadcast. Value is in wei and may be nil for zero-value calls.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// TxSender abstracts the wallet provider. Key custody and broadcast mechanics
// are entirely its responsibility; the engine only ever sees the resulting
// transaction hash or error.
type TxSender interface {
	SignAndSend(ctx context.Context, req TxRequest) (common.Hash, error)
}

// Session is the explicit wallet session handed into every engine call. It is
// a plain value so callers cannot smuggle ambient global state through it; a
// disconnect or chain switch produces a fresh Session.
type Session struct {
	Address   common.Address
	ChainID   uint64
	Connected bool
	Sender    TxSender
}

// Active reports whether the session can be used for ledger interaction.
func (s Session) Active() bool {
	return s.Connected && s.Address != (common.Address{})
}

// MatchesNetwork reports whether the session is on the given chain.
func (s Session) MatchesNetwork(n NetworkContext) bool {
	return s.ChainID == n.ChainID
}
