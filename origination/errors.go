package origination

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrDisconnected signals that no wallet session exists. Callers treat it
	// as a state, not a failure; nothing was attempted against the ledger.
	ErrDisconnected = errors.New("origination: wallet disconnected")
	// ErrNetworkMismatch signals that the session chain differs from the
	// network context the draft was built against.
	ErrNetworkMismatch = errors.New("origination: session on wrong network")
	// ErrDurationOutOfRange rejects durations outside the 30 to 365 day window.
	ErrDurationOutOfRange = errors.New("origination: loan duration out of range")
	// ErrInvalidPaymentSchedule rejects durations yielding no whole payment period.
	ErrInvalidPaymentSchedule = errors.New("origination: no whole payment period in duration")
	// ErrOwnership rejects positions the session owner does not hold in
	// authorized custody.
	ErrOwnership = errors.New("origination: position not held by owner")
	// ErrCollateralized rejects positions already backing a loan.
	ErrCollateralized = errors.New("origination: position already collateralized")
	// ErrAllowanceInsufficient means the spender allowance is below the
	// required amount beyond the precision tolerance.
	ErrAllowanceInsufficient = errors.New("origination: token allowance insufficient")
	// ErrBalanceInsufficient means the borrower cannot fund principal plus buffer.
	ErrBalanceInsufficient = errors.New("origination: token balance insufficient")
	// ErrLiquidityInsufficient means the lending pool cannot fund the principal.
	ErrLiquidityInsufficient = errors.New("origination: pool liquidity insufficient")
	// ErrContractValidation wraps a revert the ledger-side dry run produced.
	ErrContractValidation = errors.New("origination: contract validation failed")
	// ErrUserRejected means the wallet holder cancelled the confirmation.
	ErrUserRejected = errors.New("origination: user rejected transaction")
	// ErrGasEstimation marks a failed dynamic gas estimate. It is recovered
	// locally with the static fallback and never surfaced as fatal.
	ErrGasEstimation = errors.New("origination: gas estimation failed")
	// ErrExecutionFailed means the transaction mined with a failed status.
	ErrExecutionFailed = errors.New("origination: transaction execution failed")
	// ErrLoanExists mirrors the contract's duplicate-loan revert.
	ErrLoanExists = errors.New("origination: loan already exists")
	// ErrUnauthorized mirrors the contract's caller-authorization revert.
	ErrUnauthorized = errors.New("origination: unauthorized")
	// ErrInsufficientCollateral mirrors the contract's collateral revert.
	ErrInsufficientCollateral = errors.New("origination: insufficient collateral")
	// ErrApprovalInFlight rejects a second approve while one is pending.
	ErrApprovalInFlight = errors.New("origination: approval already in flight")
	// ErrStaleTerms rejects submission attempts that lack authoritative terms.
	ErrStaleTerms = errors.New("origination: loan terms are stale or provisional")
	// ErrInvalidTransition rejects wizard calls outside their legal state.
	ErrInvalidTransition = errors.New("origination: invalid wizard transition")
	// ErrUnknown is the terminal bucket for unclassifiable failures.
	ErrUnknown = errors.New("origination: unknown error")
)

// ShortfallError carries the exact remediation figures for a balance or
// allowance deficit so the UI can name the missing amount and token.
type ShortfallError struct {
	Kind      error
	Required  *big.Int
	Available *big.Int
	Symbol    string
}

func (e *ShortfallError) Error() string {
	shortfall := new(big.Int).Sub(e.Required, e.Available)
	return fmt.Sprintf("%v: need %s %s, have %s (short %s)",
		e.Kind, e.Required.String(), e.Symbol, e.Available.String(), shortfall.String())
}

// Unwrap exposes the sentinel kind for errors.Is checks.
func (e *ShortfallError) Unwrap() error { return e.Kind }

// Shortfall returns the missing amount.
func (e *ShortfallError) Shortfall() *big.Int {
	return new(big.Int).Sub(e.Required, e.Available)
}

// RevertError wraps a raw contract revert reason together with the business
// error it was classified into.
type RevertError struct {
	Kind   error
	Reason string
}

func (e *RevertError) Error() string {
	if strings.TrimSpace(e.Reason) == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

// Unwrap exposes the sentinel kind for errors.Is checks.
func (e *RevertError) Unwrap() error { return e.Kind }

// FetchError marks a failed ledger read. Previous results must not be reused
// when one is returned.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("origination: fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// isKind reports whether err classifies as the given sentinel.
func isKind(err, kind error) bool {
	return errors.Is(err, kind)
}

// TranslateRevert maps a raw execution error onto the business taxonomy by
// matching known reason substrings, the same way the contract's own revert
// strings are written. Unrecognised reasons keep their text inside a generic
// contract-validation error.
func TranslateRevert(err error) error {
	if err == nil {
		return nil
	}
	reason := strings.TrimSpace(err.Error())
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "user rejected"), strings.Contains(lower, "user denied"), strings.Contains(lower, "request rejected"):
		return &RevertError{Kind: ErrUserRejected, Reason: reason}
	case strings.Contains(lower, "invalid loan duration"), strings.Contains(lower, "duration out of range"):
		return &RevertError{Kind: ErrDurationOutOfRange, Reason: reason}
	case strings.Contains(lower, "loan already exists"), strings.Contains(lower, "active loan"):
		return &RevertError{Kind: ErrLoanExists, Reason: reason}
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "not authorized"), strings.Contains(lower, "caller is not"):
		return &RevertError{Kind: ErrUnauthorized, Reason: reason}
	case strings.Contains(lower, "insufficient collateral"), strings.Contains(lower, "collateral too low"):
		return &RevertError{Kind: ErrInsufficientCollateral, Reason: reason}
	default:
		return &RevertError{Kind: ErrContractValidation, Reason: reason}
	}
}
