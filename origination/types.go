package origination

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Duration bounds enforced by the lending contract. The preflight validator
// mirrors them so doomed transactions never reach the chain.
const (
	Day           = 24 * time.Hour
	MinDuration   = 30 * Day
	MaxDuration   = 365 * Day
	PaymentPeriod = 30 * Day
)

// PeriodCount returns the number of whole 30-day payment periods in a
// duration. 30d yields 1, 365d yields 12.
func PeriodCount(durationSeconds uint64) uint64 {
	return durationSeconds / uint64(PaymentPeriod/time.Second)
}

// Provenance marks whether loan terms came from the local estimate or from
// the ledger's enforced schedule.
type Provenance string

const (
	// Provisional terms are a fast local approximation for UI feedback only.
	Provisional Provenance = "provisional"
	// Authoritative terms were read verbatim from the ledger.
	Authoritative Provenance = "authoritative"
)

// LoanTerms is one computed quote. Authoritative terms supersede provisional
// ones whenever both exist; provisional terms must never be used to compute
// the required allowance or to submit a transaction.
type LoanTerms struct {
	Principal       *big.Int
	DurationSeconds uint64
	InterestRateBps uint64
	TotalDebt       *big.Int
	BufferAmount    *big.Int
	MonthlyPayment  *big.Int
	Provenance      Provenance
}

// Clone returns a deep copy of the terms.
func (t *LoanTerms) Clone() *LoanTerms {
	if t == nil {
		return nil
	}
	clone := &LoanTerms{
		DurationSeconds: t.DurationSeconds,
		InterestRateBps: t.InterestRateBps,
		Provenance:      t.Provenance,
	}
	if t.Principal != nil {
		clone.Principal = new(big.Int).Set(t.Principal)
	}
	if t.TotalDebt != nil {
		clone.TotalDebt = new(big.Int).Set(t.TotalDebt)
	}
	if t.BufferAmount != nil {
		clone.BufferAmount = new(big.Int).Set(t.BufferAmount)
	}
	if t.MonthlyPayment != nil {
		clone.MonthlyPayment = new(big.Int).Set(t.MonthlyPayment)
	}
	return clone
}

// RequiredAllowance is principal plus twice the buffer. The doubled buffer
// mirrors the contract's own spend check; its rationale is not re-derived
// here.
func (t *LoanTerms) RequiredAllowance() *big.Int {
	required := new(big.Int)
	if t == nil {
		return required
	}
	if t.Principal != nil {
		required.Set(t.Principal)
	}
	if t.BufferAmount != nil {
		doubled := new(big.Int).Lsh(t.BufferAmount, 1)
		required.Add(required, doubled)
	}
	return required
}

// DocumentKind tags where a position's display document came from.
type DocumentKind string

const (
	DocumentAbsent   DocumentKind = "absent"
	DocumentEmbedded DocumentKind = "embedded"
	DocumentRemote   DocumentKind = "remote"
)

// DisplayMetadata is the advisory, off-chain description of a position. It
// never overrides authoritative financial fields; the asserted value is used
// only to raise the displayed value above the ledger-derived figure.
type DisplayMetadata struct {
	Name      string
	AssetType string
	Location  string
	Value     *big.Int
	Source    DocumentKind
}

// AssetPosition is an immutable snapshot of one collateralizable holding.
// Each resolver run produces fresh snapshots; they are never mutated in place.
type AssetPosition struct {
	TokenID          *big.Int
	Owner            common.Address
	Authorized       bool
	CustodyAmount    *big.Int
	InvestmentAmount *big.Int
	Collateralized   bool
	Display          DisplayMetadata
}

// CanBeCollateralized reports eligibility for new collateralization.
func (p *AssetPosition) CanBeCollateralized() bool {
	if p == nil {
		return false
	}
	return p.Authorized && p.CustodyAmount != nil && p.CustodyAmount.Sign() > 0 && !p.Collateralized
}

// DisplayValue is the figure shown to the user: the ledger-derived custody
// amount, raised to the metadata-asserted value when that is higher.
func (p *AssetPosition) DisplayValue() *big.Int {
	value := new(big.Int)
	if p == nil {
		return value
	}
	if p.CustodyAmount != nil {
		value.Set(p.CustodyAmount)
	}
	if p.Display.Value != nil && p.Display.Value.Cmp(value) > 0 {
		value.Set(p.Display.Value)
	}
	return value
}

// Clone returns a deep copy of the position snapshot.
func (p *AssetPosition) Clone() *AssetPosition {
	if p == nil {
		return nil
	}
	clone := &AssetPosition{
		Owner:          p.Owner,
		Authorized:     p.Authorized,
		Collateralized: p.Collateralized,
		Display: DisplayMetadata{
			Name:      p.Display.Name,
			AssetType: p.Display.AssetType,
			Location:  p.Display.Location,
			Source:    p.Display.Source,
		},
	}
	if p.TokenID != nil {
		clone.TokenID = new(big.Int).Set(p.TokenID)
	}
	if p.CustodyAmount != nil {
		clone.CustodyAmount = new(big.Int).Set(p.CustodyAmount)
	}
	if p.InvestmentAmount != nil {
		clone.InvestmentAmount = new(big.Int).Set(p.InvestmentAmount)
	}
	if p.Display.Value != nil {
		clone.Display.Value = new(big.Int).Set(p.Display.Value)
	}
	return clone
}

// ApprovalState is the allowance picture for the draft currency. It is
// mutated only by the allowance orchestrator.
type ApprovalState struct {
	CurrentAllowance  *big.Int
	RequiredAllowance *big.Int
	NeedsApproval     bool
	Approving         bool
}

// Clone returns a deep copy of the approval state.
func (s ApprovalState) Clone() ApprovalState {
	clone := ApprovalState{NeedsApproval: s.NeedsApproval, Approving: s.Approving}
	if s.CurrentAllowance != nil {
		clone.CurrentAllowance = new(big.Int).Set(s.CurrentAllowance)
	}
	if s.RequiredAllowance != nil {
		clone.RequiredAllowance = new(big.Int).Set(s.RequiredAllowance)
	}
	return clone
}

// OriginationParams carries everything createLoan needs on the wire.
type OriginationParams struct {
	TokenID         *big.Int
	AccountID       *big.Int
	DurationSeconds uint64
	Principal       *big.Int
	TokenAddress    common.Address
	OriginChainID   uint64
	Borrower        common.Address
}

// OriginationResult is the terminal outcome of one submission. Immutable
// once produced.
type OriginationResult struct {
	TxHash        common.Hash
	ReceiptStatus uint64
	Err           error
}

// Succeeded reports whether the loan was created.
func (r OriginationResult) Succeeded() bool {
	return r.Err == nil && r.ReceiptStatus == 1
}
