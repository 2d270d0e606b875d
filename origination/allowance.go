package origination

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"rwalend/ledger"
	"rwalend/observability"
)

// TokenApprover builds the unsigned approve call for a token.
type TokenApprover interface {
	ApproveRequest(token, spender common.Address, amount *big.Int) (ledger.TxRequest, error)
}

// ReceiptWaiter blocks until a transaction lands or the context ends.
type ReceiptWaiter interface {
	WaitMined(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// AllowanceOrchestrator manages the fungible-token spending approval that
// must exist before origination. At most one approval may be in flight; a
// second call is rejected, not queued. A confirmed approval is its own
// committed on-chain transaction: abandoning the wizard afterwards leaves no
// invalid state, the next visit simply finds no approval needed.
type AllowanceOrchestrator struct {
	balances BalanceReader
	approver TokenApprover
	receipts ReceiptWaiter
	log      *slog.Logger

	mu        sync.Mutex
	approving bool
}

// NewAllowanceOrchestrator wires the orchestrator.
func NewAllowanceOrchestrator(balances BalanceReader, approver TokenApprover, receipts ReceiptWaiter, log *slog.Logger) *AllowanceOrchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &AllowanceOrchestrator{balances: balances, approver: approver, receipts: receipts, log: log}
}

// Check reads the current allowance and derives the approval picture. The
// precision tolerance absorbs rounding noise only; a real deficit still
// needs approval.
func (o *AllowanceOrchestrator) Check(ctx context.Context, owner, spender common.Address, token ledger.TokenInfo, required *big.Int) (ApprovalState, error) {
	if required == nil {
		return ApprovalState{}, fmt.Errorf("origination: required allowance missing")
	}
	current, err := o.balances.Allowance(ctx, token.Address, owner, spender)
	if err != nil {
		return ApprovalState{}, &FetchError{Op: "allowance", Err: err}
	}
	threshold := new(big.Int).Sub(required, precisionTolerance(token.Decimals))
	state := ApprovalState{
		CurrentAllowance:  new(big.Int).Set(current),
		RequiredAllowance: new(big.Int).Set(required),
		NeedsApproval:     current.Cmp(threshold) < 0,
	}
	o.mu.Lock()
	state.Approving = o.approving
	o.mu.Unlock()
	return state, nil
}

// Approve submits the approval transaction, waits for it to land and then
// re-reads the allowance rather than assuming the requested amount was
// granted, which guards against partial approvals and racing external
// approvals.
func (o *AllowanceOrchestrator) Approve(ctx context.Context, session ledger.Session, token ledger.TokenInfo, spender common.Address, amount *big.Int) (ApprovalState, error) {
	if !session.Active() || session.Sender == nil {
		return ApprovalState{}, ErrDisconnected
	}
	if amount == nil || amount.Sign() <= 0 {
		return ApprovalState{}, fmt.Errorf("origination: approval amount must be positive")
	}

	o.mu.Lock()
	if o.approving {
		o.mu.Unlock()
		return ApprovalState{}, ErrApprovalInFlight
	}
	o.approving = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.approving = false
		o.mu.Unlock()
	}()

	metrics := observability.Origination()
	req, err := o.approver.ApproveRequest(token.Address, spender, amount)
	if err != nil {
		metrics.RecordApproval("build_error")
		return ApprovalState{}, err
	}

	txHash, err := session.Sender.SignAndSend(ctx, req)
	if err != nil {
		translated := TranslateRevert(err)
		if isKind(translated, ErrUserRejected) {
			metrics.RecordApproval("rejected")
		} else {
			metrics.RecordApproval("send_error")
		}
		return ApprovalState{}, translated
	}
	o.log.Info("approval submitted", "tx", txHash.Hex(), "amount", amount.String(), "token", token.Symbol)

	receipt, err := o.receipts.WaitMined(ctx, txHash)
	if err != nil {
		metrics.RecordApproval("wait_error")
		return ApprovalState{}, fmt.Errorf("await approval receipt: %w", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		metrics.RecordApproval("reverted")
		return ApprovalState{}, &RevertError{Kind: ErrExecutionFailed, Reason: "approve transaction reverted"}
	}

	metrics.RecordApproval("ok")
	return o.Check(ctx, session.Address, spender, token, amount)
}
