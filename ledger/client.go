package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"rwalend/observability"
)

// Backend is the subset of the Ethereum RPC surface the client needs. It is
// an interface so the engine can be exercised against in-memory fakes.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Dial initialises an RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// InvestmentSet is the batched ledger view of an owner's tokenized positions.
// The three slices are parallel arrays as returned by the registry contract.
type InvestmentSet struct {
	TokenIDs   []*big.Int
	Amounts    []*big.Int
	Authorized []bool
}

// Len returns the number of positions, guarding against ragged arrays.
func (s InvestmentSet) Len() int {
	n := len(s.TokenIDs)
	if len(s.Amounts) < n {
		n = len(s.Amounts)
	}
	if len(s.Authorized) < n {
		n = len(s.Authorized)
	}
	return n
}

// LoanRecord mirrors the lending contract's stored loan. The contract does
// not expose which position backs a given loan.
type LoanRecord struct {
	ID              *big.Int
	Borrower        common.Address
	Principal       *big.Int
	TotalDebt       *big.Int
	DurationSeconds uint64
	StartTime       uint64
	Active          bool
}

// Client wraps a Backend with typed helpers for the registry, lending and
// token contracts of one network.
type Client struct {
	backend      Backend
	network      NetworkContext
	pollInterval time.Duration
}

// NewClient builds a ledger client for the given network context.
func NewClient(backend Backend, network NetworkContext) *Client {
	return &Client{backend: backend, network: network, pollInterval: 2 * time.Second}
}

// Network returns the context the client was built for.
func (c *Client) Network() NetworkContext {
	return c.network
}

func (c *Client) view(ctx context.Context, call string, to common.Address, contract string, method string, args ...interface{}) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed := registryABI
	switch contract {
	case "lending":
		parsed = lendingABI
	case "erc20":
		parsed = erc20ABI
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	start := time.Now()
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	observability.Origination().ObserveLedgerRead(call, time.Since(start))
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// UserInvestments reads the owner's full investment set in one batched call.
func (c *Client) UserInvestments(ctx context.Context, owner common.Address) (InvestmentSet, error) {
	values, err := c.view(ctx, "getUserInvestments", c.network.TokenRegistry, "registry", "getUserInvestments", owner)
	if err != nil {
		return InvestmentSet{}, fmt.Errorf("getUserInvestments: %w", err)
	}
	if len(values) != 3 {
		return InvestmentSet{}, fmt.Errorf("getUserInvestments: unexpected output arity %d", len(values))
	}
	ids, ok1 := values[0].([]*big.Int)
	amounts, ok2 := values[1].([]*big.Int)
	flags, ok3 := values[2].([]bool)
	if !ok1 || !ok2 || !ok3 {
		return InvestmentSet{}, fmt.Errorf("getUserInvestments: unexpected output types")
	}
	return InvestmentSet{TokenIDs: ids, Amounts: amounts, Authorized: flags}, nil
}

// PositionDocument fetches the raw display document reference for a position.
// An empty string is a valid, handled state meaning no document is attached.
func (c *Client) PositionDocument(ctx context.Context, tokenID *big.Int) (string, error) {
	values, err := c.view(ctx, "positionDocument", c.network.TokenRegistry, "registry", "positionDocument", tokenID)
	if err != nil {
		return "", fmt.Errorf("positionDocument: %w", err)
	}
	doc, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("positionDocument: unexpected output type")
	}
	return doc, nil
}

// UserLoans reads the borrower's loan id set.
func (c *Client) UserLoans(ctx context.Context, borrower common.Address) ([]*big.Int, error) {
	values, err := c.view(ctx, "getUserLoans", c.network.LendingContract, "lending", "getUserLoans", borrower)
	if err != nil {
		return nil, fmt.Errorf("getUserLoans: %w", err)
	}
	ids, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getUserLoans: unexpected output type")
	}
	return ids, nil
}

// LoanByID reads one loan record.
func (c *Client) LoanByID(ctx context.Context, id *big.Int) (LoanRecord, error) {
	values, err := c.view(ctx, "getLoanById", c.network.LendingContract, "lending", "getLoanById", id)
	if err != nil {
		return LoanRecord{}, fmt.Errorf("getLoanById: %w", err)
	}
	if len(values) != 6 {
		return LoanRecord{}, fmt.Errorf("getLoanById: unexpected output arity %d", len(values))
	}
	borrower, _ := values[0].(common.Address)
	principal, _ := values[1].(*big.Int)
	totalDebt, _ := values[2].(*big.Int)
	duration, _ := values[3].(*big.Int)
	start, _ := values[4].(*big.Int)
	active, _ := values[5].(bool)
	record := LoanRecord{
		ID:        new(big.Int).Set(id),
		Borrower:  borrower,
		Principal: principal,
		TotalDebt: totalDebt,
		Active:    active,
	}
	if duration != nil {
		record.DurationSeconds = duration.Uint64()
	}
	if start != nil {
		record.StartTime = start.Uint64()
	}
	return record, nil
}

// InterestRateFor queries the contract's deterministic rate schedule. The
// returned value is in basis points and is the enforced source of truth.
func (c *Client) InterestRateFor(ctx context.Context, durationSeconds uint64) (uint64, error) {
	values, err := c.view(ctx, "calculateInterestRate", c.network.LendingContract, "lending", "calculateInterestRate", new(big.Int).SetUint64(durationSeconds))
	if err != nil {
		return 0, fmt.Errorf("calculateInterestRate: %w", err)
	}
	rate, ok := values[0].(*big.Int)
	if !ok || rate == nil {
		return 0, fmt.Errorf("calculateInterestRate: unexpected output type")
	}
	return rate.Uint64(), nil
}

// LoanTermsFor queries total debt and buffer for a principal/duration pair.
// The values are returned verbatim; nothing is re-derived locally.
func (c *Client) LoanTermsFor(ctx context.Context, principal *big.Int, durationSeconds uint64) (*big.Int, *big.Int, error) {
	values, err := c.view(ctx, "calculateLoanTerms", c.network.LendingContract, "lending", "calculateLoanTerms", principal, new(big.Int).SetUint64(durationSeconds))
	if err != nil {
		return nil, nil, fmt.Errorf("calculateLoanTerms: %w", err)
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("calculateLoanTerms: unexpected output arity %d", len(values))
	}
	totalDebt, ok1 := values[0].(*big.Int)
	buffer, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, fmt.Errorf("calculateLoanTerms: unexpected output types")
	}
	return totalDebt, buffer, nil
}

// ValidateLoanCreation runs the contract-side dry-run view. A revert here
// carries the same reason string the real createLoan would revert with.
func (c *Client) ValidateLoanCreation(ctx context.Context, tokenID *big.Int, durationSeconds uint64) error {
	_, err := c.view(ctx, "validateLoanCreationView", c.network.LendingContract, "lending", "validateLoanCreationView", tokenID, new(big.Int).SetUint64(durationSeconds))
	return err
}

// Allowance reads the ERC-20 allowance granted by owner to spender.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	values, err := c.view(ctx, "allowance", token, "erc20", "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	remaining, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance: unexpected output type")
	}
	return remaining, nil
}

// BalanceOf reads the ERC-20 balance of an account.
func (c *Client) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	values, err := c.view(ctx, "balanceOf", token, "erc20", "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected output type")
	}
	return balance, nil
}

// ApproveRequest builds the unsigned approve transaction for the wallet.
func (c *Client) ApproveRequest(token, spender common.Address, amount *big.Int) (TxRequest, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return TxRequest{}, fmt.Errorf("pack approve: %w", err)
	}
	return TxRequest{To: token, Data: data}, nil
}

// CreateLoanRequest builds the unsigned createLoan transaction.
func (c *Client) CreateLoanRequest(tokenID, accountID *big.Int, durationSeconds uint64, principal *big.Int, tokenAddress common.Address, originChainID uint64, borrower common.Address) (TxRequest, error) {
	data, err := lendingABI.Pack("createLoan",
		tokenID,
		accountID,
		new(big.Int).SetUint64(durationSeconds),
		principal,
		tokenAddress,
		new(big.Int).SetUint64(originChainID),
		borrower,
	)
	if err != nil {
		return TxRequest{}, fmt.Errorf("pack createLoan: %w", err)
	}
	return TxRequest{To: c.network.LendingContract, Data: data}, nil
}

// EstimateGas asks the node for a gas figure for the request. Callers are
// expected to bound ctx; estimation must fall back rather than hang.
func (c *Client) EstimateGas(ctx context.Context, from common.Address, req TxRequest) (uint64, error) {
	msg := ethereum.CallMsg{From: from, To: &req.To, Data: req.Data, Value: req.Value}
	return c.backend.EstimateGas(ctx, msg)
}

// WaitMined polls for the receipt of the given transaction until it lands or
// the context is cancelled.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	interval := c.pollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
