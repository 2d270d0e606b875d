package origination

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"rwalend/ledger"
)

// fakeLedger implements every engine-facing ledger interface with in-memory
// state so the flow can be exercised without a node.
type fakeLedger struct {
	mu sync.Mutex

	investments    ledger.InvestmentSet
	investmentsErr error
	loans          []*big.Int
	loansErr       error
	records        map[string]ledger.LoanRecord
	documents      map[string]string
	documentErr    error

	rateBps  uint64
	rateErr  error
	termsErr error

	balances   map[common.Address]*big.Int
	allowances map[string]*big.Int
	balanceErr error

	dryRunErr error

	estimatedGas uint64
	estimateErr  error

	receiptStatus uint64
	waitErr       error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		rateBps:       1200,
		records:       map[string]ledger.LoanRecord{},
		documents:     map[string]string{},
		balances:      map[common.Address]*big.Int{},
		allowances:    map[string]*big.Int{},
		estimatedGas:  500_000,
		receiptStatus: gethtypes.ReceiptStatusSuccessful,
	}
}

func allowanceKey(token, owner, spender common.Address) string {
	return token.Hex() + "|" + owner.Hex() + "|" + spender.Hex()
}

func (f *fakeLedger) setBalance(account common.Address, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = big.NewInt(amount)
}

func (f *fakeLedger) setAllowance(token, owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowanceKey(token, owner, spender)] = new(big.Int).Set(amount)
}

func (f *fakeLedger) UserInvestments(ctx context.Context, owner common.Address) (ledger.InvestmentSet, error) {
	if f.investmentsErr != nil {
		return ledger.InvestmentSet{}, f.investmentsErr
	}
	return f.investments, nil
}

func (f *fakeLedger) UserLoans(ctx context.Context, borrower common.Address) ([]*big.Int, error) {
	if f.loansErr != nil {
		return nil, f.loansErr
	}
	return f.loans, nil
}

func (f *fakeLedger) LoanByID(ctx context.Context, id *big.Int) (ledger.LoanRecord, error) {
	record, ok := f.records[id.String()]
	if !ok {
		return ledger.LoanRecord{}, fmt.Errorf("loan %s not found", id)
	}
	return record, nil
}

func (f *fakeLedger) PositionDocument(ctx context.Context, tokenID *big.Int) (string, error) {
	if f.documentErr != nil {
		return "", f.documentErr
	}
	return f.documents[tokenID.String()], nil
}

func (f *fakeLedger) InterestRateFor(ctx context.Context, durationSeconds uint64) (uint64, error) {
	if f.rateErr != nil {
		return 0, f.rateErr
	}
	return f.rateBps, nil
}

// LoanTermsFor mimics a deterministic contract schedule: simple interest on
// the rate over whole periods, buffer at one tenth of principal. Debt grows
// monotonically with duration.
func (f *fakeLedger) LoanTermsFor(ctx context.Context, principal *big.Int, durationSeconds uint64) (*big.Int, *big.Int, error) {
	if f.termsErr != nil {
		return nil, nil, f.termsErr
	}
	periods := PeriodCount(durationSeconds)
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(f.rateBps*periods))
	interest.Quo(interest, big.NewInt(10_000*12))
	totalDebt := new(big.Int).Add(principal, interest)
	buffer := new(big.Int).Quo(principal, big.NewInt(10))
	return totalDebt, buffer, nil
}

func (f *fakeLedger) ValidateLoanCreation(ctx context.Context, tokenID *big.Int, durationSeconds uint64) error {
	return f.dryRunErr
}

func (f *fakeLedger) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount, ok := f.allowances[allowanceKey(token, owner, spender)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeLedger) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount, ok := f.balances[account]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeLedger) ApproveRequest(token, spender common.Address, amount *big.Int) (ledger.TxRequest, error) {
	return ledger.TxRequest{To: token, Data: []byte("approve")}, nil
}

func (f *fakeLedger) CreateLoanRequest(tokenID, accountID *big.Int, durationSeconds uint64, principal *big.Int, tokenAddress common.Address, originChainID uint64, borrower common.Address) (ledger.TxRequest, error) {
	return ledger.TxRequest{To: testLending, Data: []byte("createLoan")}, nil
}

func (f *fakeLedger) EstimateGas(ctx context.Context, from common.Address, req ledger.TxRequest) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimatedGas, nil
}

func (f *fakeLedger) WaitMined(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &gethtypes.Receipt{Status: f.receiptStatus, TxHash: txHash}, nil
}

// fakeSender captures signed-and-sent requests.
type fakeSender struct {
	mu       sync.Mutex
	requests []ledger.TxRequest
	hash     common.Hash
	err      error
	onSend   func(ledger.TxRequest)
}

func (s *fakeSender) SignAndSend(ctx context.Context, req ledger.TxRequest) (common.Hash, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	onSend := s.onSend
	s.mu.Unlock()
	if onSend != nil {
		onSend(req)
	}
	if s.err != nil {
		return common.Hash{}, s.err
	}
	if s.hash == (common.Hash{}) {
		return common.HexToHash("0xabc123"), nil
	}
	return s.hash, nil
}

func (s *fakeSender) lastRequest() (ledger.TxRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return ledger.TxRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

var (
	testOwner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testLending = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testToken   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func testNetwork() ledger.NetworkContext {
	return ledger.NetworkContext{
		ChainID:         1001,
		LendingContract: testLending,
		TokenRegistry:   common.HexToAddress("0x00000000000000000000000000000000000000dd"),
		Tokens:          []ledger.TokenInfo{{Address: testToken, Symbol: "USDQ", Decimals: 6}},
	}
}

func testSession(sender ledger.TxSender) ledger.Session {
	return ledger.Session{Address: testOwner, ChainID: 1001, Connected: true, Sender: sender}
}

func testTier() Tier {
	return Tier{
		Name:               "standard",
		NominalRateBps:     1200,
		MaxLTVBps:          6_000,
		BufferBps:          500,
		MinDurationSeconds: uint64(MinDuration.Seconds()),
		MaxDurationSeconds: uint64(MaxDuration.Seconds()),
		StaticGasLimit:     650_000,
	}
}

func seconds(days uint64) uint64 {
	return days * 24 * 60 * 60
}

func singlePosition(tokenID int64, amount int64, authorized bool) ledger.InvestmentSet {
	return ledger.InvestmentSet{
		TokenIDs:   []*big.Int{big.NewInt(tokenID)},
		Amounts:    []*big.Int{big.NewInt(amount)},
		Authorized: []bool{authorized},
	}
}
