package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner implements TxSender with an in-process key. Deployments that
// front a browser wallet never construct one; it exists for operator flows
// and integration environments.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
	backend Backend
}

// NewLocalSigner parses a hex private key and binds it to a chain id.
func NewLocalSigner(hexKey string, chainID uint64, backend Backend) (*LocalSigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("signer key required")
	}
	key, err := gethcrypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &LocalSigner{key: key, chainID: new(big.Int).SetUint64(chainID), backend: backend}, nil
}

// Address returns the account the signer controls.
func (s *LocalSigner) Address() common.Address {
	return gethcrypto.PubkeyToAddress(s.key.PublicKey)
}

// SignAndSend signs the request and broadcasts it, returning the tx hash.
func (s *LocalSigner) SignAndSend(ctx context.Context, req TxRequest) (common.Hash, error) {
	if s == nil || s.key == nil || s.backend == nil {
		return common.Hash{}, fmt.Errorf("signer not initialised")
	}
	from := s.Address()
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := req.To
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      req.GasLimit,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash(), nil
}
