package origination

import (
	"context"
	"fmt"
	"math/big"

	"rwalend/observability"
)

// TermsReader is the ledger schedule surface. Its outputs are the enforced
// source of truth and are returned verbatim by Recompute.
type TermsReader interface {
	InterestRateFor(ctx context.Context, durationSeconds uint64) (uint64, error)
	LoanTermsFor(ctx context.Context, principal *big.Int, durationSeconds uint64) (totalDebt, bufferAmount *big.Int, err error)
}

// Calculator computes loan terms along two deliberately separate paths: a
// fast local estimate for instant UI feedback, and an authoritative ledger
// recompute. Divergence between the two is expected and surfaced as
// "provisional vs. confirmed"; the provisional path must never feed a
// transaction.
type Calculator struct {
	reader TermsReader
}

// NewCalculator wires a calculator over the ledger schedule reader.
func NewCalculator(reader TermsReader) *Calculator {
	return &Calculator{reader: reader}
}

// Estimate produces provisional terms from the tier's nominal annual rate
// using the standard amortization formula
//
//	monthlyPayment = principal * r * (1+r)^n / ((1+r)^n - 1)
//
// with r the monthly rate fraction and n the whole 30-day periods. All
// arithmetic is integer minor units with rational intermediates; no floats.
func (c *Calculator) Estimate(tier Tier, principal *big.Int, durationSeconds uint64) (*LoanTerms, error) {
	if principal == nil || principal.Sign() <= 0 {
		return nil, fmt.Errorf("origination: principal must be positive")
	}
	periods := PeriodCount(durationSeconds)
	if periods == 0 {
		return nil, ErrInvalidPaymentSchedule
	}

	terms := &LoanTerms{
		Principal:       new(big.Int).Set(principal),
		DurationSeconds: durationSeconds,
		InterestRateBps: tier.NominalRateBps,
		BufferAmount:    mulBps(principal, tier.BufferBps),
		Provenance:      Provisional,
	}

	if tier.NominalRateBps == 0 {
		terms.MonthlyPayment = divHalfUp(principal, new(big.Int).SetUint64(periods))
		terms.TotalDebt = new(big.Int).Set(principal)
		observability.Origination().RecordQuote(string(Provisional))
		return terms, nil
	}

	// r = annualRateFraction / 12 as an exact rational.
	monthlyRate := new(big.Rat).SetFrac(
		new(big.Int).SetUint64(tier.NominalRateBps),
		new(big.Int).Mul(basisPoints, big.NewInt(12)),
	)
	growth := powRat(new(big.Rat).Add(big.NewRat(1, 1), monthlyRate), periods)
	numerator := new(big.Rat).Mul(new(big.Rat).SetInt(principal), monthlyRate)
	numerator.Mul(numerator, growth)
	denominator := new(big.Rat).Sub(growth, big.NewRat(1, 1))
	if denominator.Sign() == 0 {
		return nil, fmt.Errorf("origination: degenerate amortization denominator")
	}
	payment := ratToIntHalfUp(new(big.Rat).Quo(numerator, denominator))

	terms.MonthlyPayment = payment
	terms.TotalDebt = new(big.Int).Mul(payment, new(big.Int).SetUint64(periods))
	observability.Origination().RecordQuote(string(Provisional))
	return terms, nil
}

// Recompute fetches authoritative terms from the ledger. The interest rate,
// total debt and buffer are returned verbatim; re-deriving them locally is
// forbidden because the contract's schedule is the enforced outcome. The
// monthly payment is the only derived figure: totalDebt split evenly across
// the whole payment periods.
func (c *Calculator) Recompute(ctx context.Context, principal *big.Int, durationSeconds uint64) (*LoanTerms, error) {
	if principal == nil || principal.Sign() <= 0 {
		return nil, fmt.Errorf("origination: principal must be positive")
	}
	periods := PeriodCount(durationSeconds)
	if periods == 0 {
		return nil, ErrInvalidPaymentSchedule
	}

	rateBps, err := c.reader.InterestRateFor(ctx, durationSeconds)
	if err != nil {
		return nil, &FetchError{Op: "interest rate", Err: err}
	}
	totalDebt, buffer, err := c.reader.LoanTermsFor(ctx, principal, durationSeconds)
	if err != nil {
		return nil, &FetchError{Op: "loan terms", Err: err}
	}
	if totalDebt == nil || buffer == nil {
		return nil, &FetchError{Op: "loan terms", Err: fmt.Errorf("ledger returned nil terms")}
	}

	terms := &LoanTerms{
		Principal:       new(big.Int).Set(principal),
		DurationSeconds: durationSeconds,
		InterestRateBps: rateBps,
		TotalDebt:       new(big.Int).Set(totalDebt),
		BufferAmount:    new(big.Int).Set(buffer),
		MonthlyPayment:  new(big.Int).Quo(totalDebt, new(big.Int).SetUint64(periods)),
		Provenance:      Authoritative,
	}
	observability.Origination().RecordQuote(string(Authoritative))
	return terms, nil
}

// CheckLTV is the local, advisory loan-to-value guard:
// principal / positionValue must not exceed the tier maximum. It exists to
// stop obviously-oversized drafts before any ledger round trip.
func CheckLTV(principal, positionValue *big.Int, maxLTVBps uint64) error {
	if positionValue == nil || positionValue.Sign() <= 0 {
		return fmt.Errorf("origination: position value unavailable for LTV check")
	}
	if principal == nil || principal.Sign() <= 0 {
		return fmt.Errorf("origination: principal must be positive")
	}
	// principal * 10000 <= value * maxLTVBps, all integer.
	lhs := new(big.Int).Mul(principal, basisPoints)
	rhs := new(big.Int).Mul(positionValue, new(big.Int).SetUint64(maxLTVBps))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("origination: loan-to-value exceeds tier maximum of %d bps", maxLTVBps)
	}
	return nil
}
