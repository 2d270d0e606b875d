package origination

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
)

func validatorFixture(fake *fakeLedger) (*Validator, ValidationInput) {
	validator := NewValidator(fake, fake, fake, nil, nil)
	principal := big.NewInt(10_000_000_000)
	terms := &LoanTerms{
		Principal:       principal,
		DurationSeconds: seconds(180),
		TotalDebt:       big.NewInt(10_600_000_000),
		BufferAmount:    big.NewInt(1_000_000_000),
		Provenance:      Authoritative,
	}
	network := testNetwork()
	position := &AssetPosition{
		TokenID:       big.NewInt(7),
		Owner:         testOwner,
		Authorized:    true,
		CustodyAmount: big.NewInt(50_000_000_000),
	}
	in := ValidationInput{
		Session:         testSession(nil),
		Network:         network,
		Position:        position,
		Terms:           terms,
		Token:           network.Tokens[0],
		Principal:       principal,
		DurationSeconds: seconds(180),
	}
	return validator, in
}

func fundedFake() *fakeLedger {
	fake := newFakeLedger()
	fake.investments = singlePosition(7, 50_000_000_000, true)
	// required = principal + 2*buffer = 12e9
	fake.balances[testOwner] = big.NewInt(20_000_000_000)
	fake.balances[testLending] = big.NewInt(100_000_000_000)
	fake.allowances[allowanceKey(testToken, testOwner, testLending)] = big.NewInt(12_000_000_000)
	return fake
}

func TestValidateDurationBounds(t *testing.T) {
	validator, in := validatorFixture(fundedFake())
	cases := []struct {
		name     string
		duration uint64
		wantErr  error
	}{
		{"below minimum", seconds(30) - 1, ErrDurationOutOfRange},
		{"minimum", seconds(30), nil},
		{"maximum", seconds(365), nil},
		{"above maximum", seconds(365) + 1, ErrDurationOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := in
			in.DurationSeconds = tc.duration
			err := validator.Validate(context.Background(), in)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateRejectsUnownedPosition(t *testing.T) {
	fake := fundedFake()
	fake.investments = singlePosition(99, 1_000, true)
	validator, in := validatorFixture(fake)
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrOwnership) {
		t.Fatalf("got %v, want ErrOwnership", err)
	}
}

func TestValidateRejectsZeroCustody(t *testing.T) {
	fake := fundedFake()
	fake.investments = singlePosition(7, 0, true)
	validator, in := validatorFixture(fake)
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrOwnership) {
		t.Fatalf("got %v, want ErrOwnership", err)
	}
}

func TestValidateRejectsCollateralizedPosition(t *testing.T) {
	validator, in := validatorFixture(fundedFake())
	in.Position = in.Position.Clone()
	in.Position.Collateralized = true
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrCollateralized) {
		t.Fatalf("got %v, want ErrCollateralized", err)
	}
}

func TestValidateActiveLoanWarnsOnly(t *testing.T) {
	fake := fundedFake()
	fake.loans = []*big.Int{big.NewInt(3)}
	validator, in := validatorFixture(fake)
	// Position not flagged collateralized: cross-reference is best effort
	// and must not hard-fail.
	if err := validator.Validate(context.Background(), in); err != nil {
		t.Fatalf("expected warn-only conflict, got %v", err)
	}
}

func TestValidateZeroBalanceNamesShortfall(t *testing.T) {
	fake := fundedFake()
	fake.balances[testOwner] = big.NewInt(0)
	validator, in := validatorFixture(fake)
	err := validator.Validate(context.Background(), in)
	if !errors.Is(err, ErrBalanceInsufficient) {
		t.Fatalf("got %v, want ErrBalanceInsufficient", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "12000000000") || !strings.Contains(msg, "USDQ") {
		t.Fatalf("remediation text must name exact amount and symbol: %q", msg)
	}
}

func TestValidateAllowanceTolerance(t *testing.T) {
	fake := fundedFake()
	// Required is 12e9; tolerance at 6 decimals is 1e4. Just inside the
	// tolerance passes, just outside fails.
	fake.allowances[allowanceKey(testToken, testOwner, testLending)] = big.NewInt(12_000_000_000 - 10_000)
	validator, in := validatorFixture(fake)
	if err := validator.Validate(context.Background(), in); err != nil {
		t.Fatalf("allowance within tolerance must pass: %v", err)
	}

	fake.allowances[allowanceKey(testToken, testOwner, testLending)] = big.NewInt(12_000_000_000 - 10_001)
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrAllowanceInsufficient) {
		t.Fatalf("got %v, want ErrAllowanceInsufficient", err)
	}
}

func TestValidateRejectsProvisionalTerms(t *testing.T) {
	validator, in := validatorFixture(fundedFake())
	in.Terms = in.Terms.Clone()
	in.Terms.Provenance = Provisional
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrStaleTerms) {
		t.Fatalf("provisional terms must never reach the funding check, got %v", err)
	}
}

func TestValidatePoolLiquidity(t *testing.T) {
	fake := fundedFake()
	fake.balances[testLending] = big.NewInt(9_999_999_999)
	validator, in := validatorFixture(fake)
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrLiquidityInsufficient) {
		t.Fatalf("got %v, want ErrLiquidityInsufficient", err)
	}
}

func TestValidateDryRunTranslated(t *testing.T) {
	fake := fundedFake()
	fake.dryRunErr = fmt.Errorf("execution reverted: Invalid loan duration")
	validator, in := validatorFixture(fake)
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrDurationOutOfRange) {
		t.Fatalf("dry-run revert must translate, got %v", err)
	}
}

func TestValidateDisconnectedSession(t *testing.T) {
	validator, in := validatorFixture(fundedFake())
	in.Session.Connected = false
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("got %v, want ErrDisconnected", err)
	}
}

func TestValidateNetworkMismatch(t *testing.T) {
	validator, in := validatorFixture(fundedFake())
	in.Session.ChainID = 55
	if err := validator.Validate(context.Background(), in); !errors.Is(err, ErrNetworkMismatch) {
		t.Fatalf("got %v, want ErrNetworkMismatch", err)
	}
}
