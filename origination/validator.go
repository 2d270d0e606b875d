package origination

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rwalend/ledger"
	"rwalend/observability"
)

// BalanceReader reads token balances and allowances for the preflight checks.
type BalanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// DryRunner performs the ledger-side validation view call.
type DryRunner interface {
	ValidateLoanCreation(ctx context.Context, tokenID *big.Int, durationSeconds uint64) error
}

// ValidationInput bundles everything the preflight sequence inspects.
type ValidationInput struct {
	Session         ledger.Session
	Network         ledger.NetworkContext
	Position        *AssetPosition
	Terms           *LoanTerms
	Token           ledger.TokenInfo
	Principal       *big.Int
	DurationSeconds uint64
}

// Validator runs the fail-fast preflight sequence mirroring the contract's
// revert conditions. Steps one through six are local, advisory guards that
// exist purely to avoid wasted gas; only the final ledger-side dry run is a
// true guarantee.
type Validator struct {
	reader    PositionReader
	balances  BalanceReader
	dryRunner DryRunner
	log       *slog.Logger
	diag      DiagnosticSink
}

// NewValidator wires the preflight validator.
func NewValidator(reader PositionReader, balances BalanceReader, dryRunner DryRunner, log *slog.Logger, diag DiagnosticSink) *Validator {
	if log == nil {
		log = slog.Default()
	}
	if diag == nil {
		diag = NopDiagnostics{}
	}
	return &Validator{reader: reader, balances: balances, dryRunner: dryRunner, log: log, diag: diag}
}

// Validate runs the checks top to bottom; the first failure wins.
func (v *Validator) Validate(ctx context.Context, in ValidationInput) error {
	metrics := observability.Origination()

	if !in.Session.Active() {
		metrics.RecordPreflight("disconnected")
		return ErrDisconnected
	}
	if !in.Session.MatchesNetwork(in.Network) {
		metrics.RecordPreflight("network")
		return ErrNetworkMismatch
	}

	// 1. Duration bound.
	if err := checkDuration(in.DurationSeconds); err != nil {
		metrics.RecordPreflight("duration")
		return err
	}
	// 2. Period count.
	if PeriodCount(in.DurationSeconds) < 1 {
		metrics.RecordPreflight("schedule")
		return ErrInvalidPaymentSchedule
	}
	// 3. Ownership from a fresh ledger read, never the cached snapshot.
	if err := v.checkOwnership(ctx, in); err != nil {
		metrics.RecordPreflight("ownership")
		return err
	}
	// 4. Conflict: best-effort active-loan cross-reference. Warns unless the
	// position was explicitly flagged collateralized.
	if err := v.checkConflict(ctx, in); err != nil {
		metrics.RecordPreflight("conflict")
		return err
	}
	// 5. Allowance and balance against principal + 2*buffer.
	if err := v.checkFunding(ctx, in); err != nil {
		metrics.RecordPreflight("funding")
		return err
	}
	// 6. Pool liquidity.
	if err := v.checkLiquidity(ctx, in); err != nil {
		metrics.RecordPreflight("liquidity")
		return err
	}
	// 7. Authoritative ledger-side dry run. The only check whose pass is a
	// genuine guarantee.
	if err := v.dryRunner.ValidateLoanCreation(ctx, in.Position.TokenID, in.DurationSeconds); err != nil {
		metrics.RecordPreflight("dry_run")
		return TranslateRevert(err)
	}

	metrics.RecordPreflight("ok")
	v.diag.Event("preflight_passed", map[string]string{
		"token_id": in.Position.TokenID.String(),
	})
	return nil
}

func checkDuration(durationSeconds uint64) error {
	min := uint64(MinDuration / time.Second)
	max := uint64(MaxDuration / time.Second)
	if durationSeconds < min || durationSeconds > max {
		return ErrDurationOutOfRange
	}
	return nil
}

func (v *Validator) checkOwnership(ctx context.Context, in ValidationInput) error {
	if in.Position == nil || in.Position.TokenID == nil {
		return ErrOwnership
	}
	investments, err := v.reader.UserInvestments(ctx, in.Session.Address)
	if err != nil {
		return &FetchError{Op: "ownership", Err: err}
	}
	for i := 0; i < investments.Len(); i++ {
		if investments.TokenIDs[i] == nil || in.Position.TokenID == nil {
			continue
		}
		if investments.TokenIDs[i].Cmp(in.Position.TokenID) != 0 {
			continue
		}
		if investments.Authorized[i] && investments.Amounts[i] != nil && investments.Amounts[i].Sign() > 0 {
			return nil
		}
		return ErrOwnership
	}
	return ErrOwnership
}

func (v *Validator) checkConflict(ctx context.Context, in ValidationInput) error {
	if in.Position.Collateralized {
		return ErrCollateralized
	}
	loanIDs, err := v.reader.UserLoans(ctx, in.Session.Address)
	if err != nil {
		// Best effort only: a failed cross-reference is logged, not fatal,
		// because the dry run below still catches a real conflict.
		v.log.Warn("active-loan cross-reference failed", "error", err.Error())
		return nil
	}
	if len(loanIDs) > 0 {
		v.diag.Event("conflict_warning", map[string]string{
			"loan_count": new(big.Int).SetInt64(int64(len(loanIDs))).String(),
		})
	}
	return nil
}

func (v *Validator) checkFunding(ctx context.Context, in ValidationInput) error {
	if in.Terms == nil || in.Terms.Provenance != Authoritative {
		return ErrStaleTerms
	}
	required := in.Terms.RequiredAllowance()
	tolerance := precisionTolerance(in.Token.Decimals)

	balance, err := v.balances.BalanceOf(ctx, in.Token.Address, in.Session.Address)
	if err != nil {
		return &FetchError{Op: "balance", Err: err}
	}
	if balance.Cmp(required) < 0 {
		return &ShortfallError{Kind: ErrBalanceInsufficient, Required: required, Available: balance, Symbol: in.Token.Symbol}
	}

	allowance, err := v.balances.Allowance(ctx, in.Token.Address, in.Session.Address, in.Network.LendingContract)
	if err != nil {
		return &FetchError{Op: "allowance", Err: err}
	}
	threshold := new(big.Int).Sub(required, tolerance)
	if allowance.Cmp(threshold) < 0 {
		return &ShortfallError{Kind: ErrAllowanceInsufficient, Required: required, Available: allowance, Symbol: in.Token.Symbol}
	}
	return nil
}

func (v *Validator) checkLiquidity(ctx context.Context, in ValidationInput) error {
	poolBalance, err := v.balances.BalanceOf(ctx, in.Token.Address, in.Network.LendingContract)
	if err != nil {
		return &FetchError{Op: "pool balance", Err: err}
	}
	if poolBalance.Cmp(in.Principal) < 0 {
		return &ShortfallError{Kind: ErrLiquidityInsufficient, Required: in.Principal, Available: poolBalance, Symbol: in.Token.Symbol}
	}
	return nil
}
