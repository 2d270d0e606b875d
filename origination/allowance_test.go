package origination

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"rwalend/ledger"
)

func TestCheckNeedsApproval(t *testing.T) {
	fake := newFakeLedger()
	orchestrator := NewAllowanceOrchestrator(fake, fake, fake, nil)
	token := testNetwork().Tokens[0]
	required := big.NewInt(12_000_000_000)

	state, err := orchestrator.Check(context.Background(), testOwner, testLending, token, required)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !state.NeedsApproval {
		t.Fatalf("zero allowance must need approval")
	}
	if state.RequiredAllowance.Cmp(required) != 0 {
		t.Fatalf("required mismatch: %s", state.RequiredAllowance)
	}

	// Exactly at the tolerance boundary no approval is needed.
	fake.setAllowance(token.Address, testOwner, testLending, big.NewInt(12_000_000_000-10_000))
	state, err = orchestrator.Check(context.Background(), testOwner, testLending, token, required)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if state.NeedsApproval {
		t.Fatalf("allowance within tolerance must not need approval")
	}
}

func TestApproveRereadsAllowance(t *testing.T) {
	fake := newFakeLedger()
	token := testNetwork().Tokens[0]
	amount := big.NewInt(12_000_000_000)
	// The ledger grants less than requested; the orchestrator must report
	// the re-read value, not assume the request was honoured.
	granted := big.NewInt(11_000_000_000)
	sender := &fakeSender{onSend: func(ledger.TxRequest) {
		fake.setAllowance(token.Address, testOwner, testLending, granted)
	}}
	orchestrator := NewAllowanceOrchestrator(fake, fake, fake, nil)

	state, err := orchestrator.Approve(context.Background(), testSession(sender), token, testLending, amount)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if state.CurrentAllowance.Cmp(granted) != 0 {
		t.Fatalf("current allowance = %s, want re-read %s", state.CurrentAllowance, granted)
	}
	if !state.NeedsApproval {
		t.Fatalf("partial approval must still report approval needed")
	}
}

func TestApproveSingleFlight(t *testing.T) {
	fake := newFakeLedger()
	token := testNetwork().Tokens[0]
	release := make(chan struct{})
	started := make(chan struct{})
	sender := &fakeSender{onSend: func(ledger.TxRequest) {
		close(started)
		<-release
	}}
	orchestrator := NewAllowanceOrchestrator(fake, fake, fake, nil)
	session := testSession(sender)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = orchestrator.Approve(context.Background(), session, token, testLending, big.NewInt(1_000))
	}()
	<-started

	_, err := orchestrator.Approve(context.Background(), session, token, testLending, big.NewInt(1_000))
	if !errors.Is(err, ErrApprovalInFlight) {
		t.Fatalf("second approve must be rejected, got %v", err)
	}
	close(release)
	wg.Wait()

	// After the first approval drains, a fresh one is accepted again.
	quiet := &fakeSender{}
	if _, err := orchestrator.Approve(context.Background(), testSession(quiet), token, testLending, big.NewInt(1_000)); err != nil {
		t.Fatalf("approve after drain: %v", err)
	}
}

func TestApproveRevertedReceipt(t *testing.T) {
	fake := newFakeLedger()
	fake.receiptStatus = gethtypes.ReceiptStatusFailed
	orchestrator := NewAllowanceOrchestrator(fake, fake, fake, nil)
	_, err := orchestrator.Approve(context.Background(), testSession(&fakeSender{}), testNetwork().Tokens[0], testLending, big.NewInt(1_000))
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("got %v, want ErrExecutionFailed", err)
	}
}

func TestApproveUserRejected(t *testing.T) {
	fake := newFakeLedger()
	sender := &fakeSender{err: errors.New("user rejected the request")}
	orchestrator := NewAllowanceOrchestrator(fake, fake, fake, nil)
	_, err := orchestrator.Approve(context.Background(), testSession(sender), testNetwork().Tokens[0], testLending, big.NewInt(1_000))
	if !errors.Is(err, ErrUserRejected) {
		t.Fatalf("got %v, want ErrUserRejected", err)
	}
}

func TestApproveRequiresSession(t *testing.T) {
	fake := newFakeLedger()
	orchestrator := NewAllowanceOrchestrator(fake, fake, fake, nil)
	_, err := orchestrator.Approve(context.Background(), testSession(nil), testNetwork().Tokens[0], testLending, big.NewInt(1_000))
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("got %v, want ErrDisconnected", err)
	}
}
