package origination

import (
	"context"
	"math/big"
	"testing"
)

func TestEstimateAmortization(t *testing.T) {
	calc := NewCalculator(newFakeLedger())
	terms, err := calc.Estimate(testTier(), big.NewInt(600_000), seconds(180))
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	// 12% nominal, r = 1%, n = 6:
	// payment = P * r(1+r)^n / ((1+r)^n - 1), rounded half up.
	if terms.MonthlyPayment.Int64() != 103_529 {
		t.Fatalf("monthly payment = %s, want 103529", terms.MonthlyPayment)
	}
	if terms.TotalDebt.Int64() != 621_174 {
		t.Fatalf("total debt = %s, want 621174", terms.TotalDebt)
	}
	if terms.Provenance != Provisional {
		t.Fatalf("estimate must be provisional, got %s", terms.Provenance)
	}
	if terms.BufferAmount.Int64() != 30_000 {
		t.Fatalf("buffer = %s, want 30000 (500 bps)", terms.BufferAmount)
	}
}

func TestEstimateZeroRate(t *testing.T) {
	tier := testTier()
	tier.NominalRateBps = 0
	calc := NewCalculator(newFakeLedger())
	terms, err := calc.Estimate(tier, big.NewInt(600_000), seconds(180))
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if terms.MonthlyPayment.Int64() != 100_000 {
		t.Fatalf("zero-rate payment = %s, want 100000", terms.MonthlyPayment)
	}
	if terms.TotalDebt.Cmp(big.NewInt(600_000)) != 0 {
		t.Fatalf("zero-rate debt must equal principal, got %s", terms.TotalDebt)
	}
}

func TestEstimateRejectsShortDuration(t *testing.T) {
	calc := NewCalculator(newFakeLedger())
	if _, err := calc.Estimate(testTier(), big.NewInt(1_000), seconds(29)); err != ErrInvalidPaymentSchedule {
		t.Fatalf("expected ErrInvalidPaymentSchedule, got %v", err)
	}
}

func TestRecomputeReturnsLedgerVerbatim(t *testing.T) {
	fake := newFakeLedger()
	calc := NewCalculator(fake)
	principal := big.NewInt(10_000_000_000) // 10,000 at 6 decimals

	terms, err := calc.Recompute(context.Background(), principal, seconds(180))
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	wantDebt, wantBuffer, _ := fake.LoanTermsFor(context.Background(), principal, seconds(180))
	if terms.TotalDebt.Cmp(wantDebt) != 0 {
		t.Fatalf("total debt %s diverged from ledger %s", terms.TotalDebt, wantDebt)
	}
	if terms.BufferAmount.Cmp(wantBuffer) != 0 {
		t.Fatalf("buffer %s diverged from ledger %s", terms.BufferAmount, wantBuffer)
	}
	if terms.Provenance != Authoritative {
		t.Fatalf("recompute must be authoritative")
	}
	// monthlyPayment = totalDebt / 6 for a 180d loan.
	wantMonthly := new(big.Int).Quo(wantDebt, big.NewInt(6))
	if terms.MonthlyPayment.Cmp(wantMonthly) != 0 {
		t.Fatalf("monthly %s, want totalDebt/6 = %s", terms.MonthlyPayment, wantMonthly)
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	calc := NewCalculator(newFakeLedger())
	principal := big.NewInt(5_000_000)

	first, err := calc.Recompute(context.Background(), principal, seconds(90))
	if err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	second, err := calc.Recompute(context.Background(), principal, seconds(90))
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if first.TotalDebt.Cmp(second.TotalDebt) != 0 || first.BufferAmount.Cmp(second.BufferAmount) != 0 {
		t.Fatalf("recompute not idempotent: %s/%s vs %s/%s",
			first.TotalDebt, first.BufferAmount, second.TotalDebt, second.BufferAmount)
	}
}

func TestRecomputeDebtMonotonicInDuration(t *testing.T) {
	calc := NewCalculator(newFakeLedger())
	principal := big.NewInt(1_000_000)
	previous := big.NewInt(0)
	for days := uint64(30); days <= 365; days += 30 {
		terms, err := calc.Recompute(context.Background(), principal, seconds(days))
		if err != nil {
			t.Fatalf("recompute %dd: %v", days, err)
		}
		if terms.TotalDebt.Cmp(previous) < 0 {
			t.Fatalf("total debt decreased at %dd: %s < %s", days, terms.TotalDebt, previous)
		}
		previous = terms.TotalDebt
	}
}

func TestRequiredAllowanceDoublesBuffer(t *testing.T) {
	terms := &LoanTerms{
		Principal:    big.NewInt(10_000),
		BufferAmount: big.NewInt(500),
	}
	if got := terms.RequiredAllowance(); got.Int64() != 11_000 {
		t.Fatalf("required allowance = %s, want principal + 2*buffer = 11000", got)
	}
}

func TestCheckLTV(t *testing.T) {
	value := big.NewInt(100_000)
	if err := CheckLTV(big.NewInt(60_000), value, 6_000); err != nil {
		t.Fatalf("60%% LTV at a 6000 bps cap should pass: %v", err)
	}
	if err := CheckLTV(big.NewInt(60_001), value, 6_000); err == nil {
		t.Fatalf("LTV above cap must fail")
	}
	if err := CheckLTV(big.NewInt(1), big.NewInt(0), 6_000); err == nil {
		t.Fatalf("zero position value must fail")
	}
}
