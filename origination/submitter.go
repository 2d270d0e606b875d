package origination

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"rwalend/ledger"
	"rwalend/observability"
)

// gasSafetyMarginPct is applied over whichever gas figure is used, estimated
// or static.
const gasSafetyMarginPct = 20

// defaultEstimateTimeout bounds the gas-estimation RPC; estimation falls back
// rather than hang. It is the only hard timeout in the flow; a pending
// wallet confirmation has none.
const defaultEstimateTimeout = 8 * time.Second

// LoanTxBuilder builds the unsigned createLoan call.
type LoanTxBuilder interface {
	CreateLoanRequest(tokenID, accountID *big.Int, durationSeconds uint64, principal *big.Int, tokenAddress common.Address, originChainID uint64, borrower common.Address) (ledger.TxRequest, error)
}

// GasEstimator asks the node for a dynamic gas figure.
type GasEstimator interface {
	EstimateGas(ctx context.Context, from common.Address, req ledger.TxRequest) (uint64, error)
}

// Submitter builds, gas-estimates, submits and interprets the loan-creation
// transaction.
type Submitter struct {
	builder         LoanTxBuilder
	gas             GasEstimator
	receipts        ReceiptWaiter
	estimateTimeout time.Duration
	log             *slog.Logger
	diag            DiagnosticSink
}

// NewSubmitter wires the submitter.
func NewSubmitter(builder LoanTxBuilder, gas GasEstimator, receipts ReceiptWaiter, log *slog.Logger, diag DiagnosticSink) *Submitter {
	if log == nil {
		log = slog.Default()
	}
	if diag == nil {
		diag = NopDiagnostics{}
	}
	return &Submitter{
		builder:         builder,
		gas:             gas,
		receipts:        receipts,
		estimateTimeout: defaultEstimateTimeout,
		log:             log,
		diag:            diag,
	}
}

// Submit sends the origination transaction and classifies its outcome. The
// result is terminal and immutable once produced; the caller owns retry
// policy.
func (s *Submitter) Submit(ctx context.Context, params OriginationParams, tier Tier, session ledger.Session) OriginationResult {
	metrics := observability.Origination()
	if !session.Active() || session.Sender == nil {
		metrics.RecordSubmission("disconnected")
		return OriginationResult{Err: ErrDisconnected}
	}

	req, err := s.builder.CreateLoanRequest(
		params.TokenID,
		params.AccountID,
		params.DurationSeconds,
		params.Principal,
		params.TokenAddress,
		params.OriginChainID,
		params.Borrower,
	)
	if err != nil {
		metrics.RecordSubmission("build_error")
		return OriginationResult{Err: fmt.Errorf("build createLoan: %w", err)}
	}

	req.GasLimit = s.gasLimit(ctx, session.Address, req, tier)
	s.diag.Event("submitting", map[string]string{
		"token_id":  params.TokenID.String(),
		"principal": params.Principal.String(),
		"gas_limit": fmt.Sprintf("%d", req.GasLimit),
	})

	txHash, err := session.Sender.SignAndSend(ctx, req)
	if err != nil {
		translated := TranslateRevert(err)
		switch {
		case isKind(translated, ErrUserRejected):
			metrics.RecordSubmission("rejected")
		default:
			metrics.RecordSubmission("revert")
		}
		return OriginationResult{Err: translated}
	}
	s.log.Info("origination submitted", "tx", txHash.Hex(), "principal", params.Principal.String())

	receipt, err := s.receipts.WaitMined(ctx, txHash)
	if err != nil {
		metrics.RecordSubmission("wait_error")
		return OriginationResult{TxHash: txHash, Err: fmt.Errorf("await origination receipt: %w", err)}
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		metrics.RecordSubmission("execution_failed")
		return OriginationResult{
			TxHash:        txHash,
			ReceiptStatus: receipt.Status,
			Err:           &RevertError{Kind: ErrExecutionFailed, Reason: "createLoan transaction reverted"},
		}
	}

	metrics.RecordSubmission("ok")
	return OriginationResult{TxHash: txHash, ReceiptStatus: receipt.Status}
}

// gasLimit attempts a dynamic estimate and falls back to the tier's static
// default on any failure; submission is never blocked on estimation alone.
// The safety margin applies to whichever figure is used.
func (s *Submitter) gasLimit(ctx context.Context, from common.Address, req ledger.TxRequest, tier Tier) uint64 {
	timeout := s.estimateTimeout
	if timeout <= 0 {
		timeout = defaultEstimateTimeout
	}
	estimateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base := tier.StaticGasLimit
	if base == 0 {
		base = defaultStaticGasLimit
	}
	estimated, err := s.gas.EstimateGas(estimateCtx, from, req)
	if err != nil {
		observability.Origination().RecordGasFallback()
		s.log.Warn("gas estimation failed, using static fallback",
			"fallback", base, "error", fmt.Errorf("%w: %v", ErrGasEstimation, err).Error())
	} else if estimated > 0 {
		base = estimated
	}
	return base + base*gasSafetyMarginPct/100
}
