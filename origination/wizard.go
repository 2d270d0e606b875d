package origination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"rwalend/ledger"
)

// State names one step of the origination wizard lifecycle.
type State string

// Wizard lifecycle states. Completed and Failed are terminal and reachable
// from Submitting only.
const (
	StateDisconnected  State = "DISCONNECTED"
	StateConfiguring   State = "CONFIGURING"
	StateReviewPending State = "REVIEW_PENDING"
	StateApproving     State = "APPROVING"
	StateSubmitting    State = "SUBMITTING"
	StateCompleted     State = "COMPLETED"
	StateFailed        State = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Draft is the user's current selection. Changing any field after review
// invalidates the cached authoritative terms.
type Draft struct {
	TokenID         *big.Int
	TierName        string
	Principal       *big.Int
	DurationSeconds uint64
	Token           ledger.TokenInfo
	AccountID       *big.Int
}

func (d Draft) complete() bool {
	return d.TokenID != nil && d.Principal != nil && d.Principal.Sign() > 0 &&
		d.DurationSeconds > 0 && d.TierName != "" && d.Token.Address != (gethcommon.Address{})
}

// Snapshot is a point-in-time copy of the wizard for hosts to render.
type Snapshot struct {
	ID            uuid.UUID
	State         State
	Draft         Draft
	Positions     []AssetPosition
	Provisional   *LoanTerms
	Authoritative *LoanTerms
	Approval      ApprovalState
	Result        *OriginationResult
}

// Wizard sequences user input, the engine components and error surfacing.
// One wizard instance corresponds to one user session; it owns all mutable
// flow state and the other components stay stateless.
type Wizard struct {
	id          uuid.UUID
	resolver    *Resolver
	calculator  *Calculator
	validator   *Validator
	allowance   *AllowanceOrchestrator
	submitter   *Submitter
	tiers       TierCatalog
	settleDelay time.Duration
	log         *slog.Logger
	diag        DiagnosticSink

	mu            sync.Mutex
	state         State
	session       ledger.Session
	network       ledger.NetworkContext
	draft         Draft
	positions     []AssetPosition
	provisional   *LoanTerms
	authoritative *LoanTerms
	approval      ApprovalState
	result        *OriginationResult
}

// WizardDeps bundles the engine components a wizard orchestrates.
type WizardDeps struct {
	Resolver    *Resolver
	Calculator  *Calculator
	Validator   *Validator
	Allowance   *AllowanceOrchestrator
	Submitter   *Submitter
	Tiers       TierCatalog
	SettleDelay time.Duration
	Log         *slog.Logger
	Diag        DiagnosticSink
}

// NewWizard builds a wizard in the Disconnected state.
func NewWizard(deps WizardDeps) *Wizard {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	diag := deps.Diag
	if diag == nil {
		diag = NopDiagnostics{}
	}
	settle := deps.SettleDelay
	if settle < 0 {
		settle = 0
	}
	return &Wizard{
		id:          uuid.New(),
		resolver:    deps.Resolver,
		calculator:  deps.Calculator,
		validator:   deps.Validator,
		allowance:   deps.Allowance,
		submitter:   deps.Submitter,
		tiers:       deps.Tiers,
		settleDelay: settle,
		log:         log,
		diag:        diag,
		state:       StateDisconnected,
	}
}

// ID returns the wizard instance identifier.
func (w *Wizard) ID() uuid.UUID {
	return w.id
}

// Snapshot returns a deep copy of the current flow state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := Snapshot{
		ID:            w.id,
		State:         w.state,
		Draft:         w.draft,
		Provisional:   w.provisional.Clone(),
		Authoritative: w.authoritative.Clone(),
		Approval:      w.approval.Clone(),
	}
	if w.result != nil {
		result := *w.result
		snap.Result = &result
	}
	snap.Positions = make([]AssetPosition, 0, len(w.positions))
	for i := range w.positions {
		snap.Positions = append(snap.Positions, *w.positions[i].Clone())
	}
	return snap
}

// Connect attaches a wallet session and moves to Configuring. Reconnecting
// with a different chain resets any draft built against the old network.
func (w *Wizard) Connect(session ledger.Session, network ledger.NetworkContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Terminal() {
		return ErrInvalidTransition
	}
	if !session.Active() {
		return ErrDisconnected
	}
	if !session.MatchesNetwork(network) {
		return ErrNetworkMismatch
	}
	if w.session.ChainID != 0 && w.session.ChainID != session.ChainID {
		w.resetDraftLocked()
	}
	w.session = session
	w.network = network
	w.state = StateConfiguring
	w.diag.Event("connected", map[string]string{"chain_id": fmt.Sprintf("%d", session.ChainID)})
	return nil
}

// Disconnect drops the session and all draft state.
func (w *Wizard) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Terminal() {
		return
	}
	w.session = ledger.Session{}
	w.resetDraftLocked()
	w.state = StateDisconnected
}

// LoadPositions refreshes the position list from the ledger.
func (w *Wizard) LoadPositions(ctx context.Context) ([]AssetPosition, error) {
	w.mu.Lock()
	if w.state != StateConfiguring && w.state != StateReviewPending {
		w.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	session := w.session
	network := w.network
	w.mu.Unlock()

	positions, err := w.resolver.Resolve(ctx, session, network)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.positions = positions
	w.mu.Unlock()
	return positions, nil
}

// SetDraft records the user's selection and computes a provisional quote.
// Any change while in ReviewPending forces re-entry into Configuring so a
// submission can never run against a stale authoritative quote.
func (w *Wizard) SetDraft(draft Draft) (*LoanTerms, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case StateConfiguring:
	case StateReviewPending:
		w.authoritative = nil
		w.approval = ApprovalState{}
		w.state = StateConfiguring
	default:
		return nil, ErrInvalidTransition
	}
	tier, ok := w.tiers.Find(draft.TierName)
	if !ok {
		return nil, fmt.Errorf("origination: unknown tier %q", draft.TierName)
	}
	w.draft = draft
	w.provisional = nil
	if !draft.complete() {
		return nil, nil
	}
	terms, err := w.calculator.Estimate(tier, draft.Principal, draft.DurationSeconds)
	if err != nil {
		return nil, err
	}
	if position := w.positionForLocked(draft.TokenID); position != nil {
		if err := CheckLTV(draft.Principal, position.DisplayValue(), tier.MaxLTVBps); err != nil {
			// Advisory only: the quote is still produced, the host renders
			// the warning alongside it.
			w.diag.Event("ltv_warning", map[string]string{"error": err.Error()})
		}
	}
	w.provisional = terms
	return terms.Clone(), nil
}

// Review recomputes authoritative terms from the ledger, runs the preflight
// sequence and enters ReviewPending. An insufficient allowance is an
// expected outcome here, reflected in the approval state rather than
// returned as a failure.
func (w *Wizard) Review(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if w.state != StateConfiguring && w.state != StateReviewPending {
		w.mu.Unlock()
		return Snapshot{}, ErrInvalidTransition
	}
	if !w.draft.complete() {
		w.mu.Unlock()
		return Snapshot{}, fmt.Errorf("origination: draft incomplete")
	}
	draft := w.draft
	session := w.session
	w.mu.Unlock()

	terms, err := w.calculator.Recompute(ctx, draft.Principal, draft.DurationSeconds)
	if err != nil {
		return Snapshot{}, err
	}

	validationErr := w.validator.Validate(ctx, w.validationInput(terms))
	if validationErr != nil && !errors.Is(validationErr, ErrAllowanceInsufficient) {
		return Snapshot{}, validationErr
	}

	required := terms.RequiredAllowance()
	approval, err := w.allowance.Check(ctx, session.Address, w.network.LendingContract, draft.Token, required)
	if err != nil {
		return Snapshot{}, err
	}

	w.mu.Lock()
	// Draft changed while we were off the lock: discard the stale quote.
	if !draftEqual(w.draft, draft) {
		w.mu.Unlock()
		return Snapshot{}, ErrStaleTerms
	}
	w.authoritative = terms
	w.approval = approval
	w.state = StateReviewPending
	w.mu.Unlock()
	return w.Snapshot(), nil
}

// Approve runs the allowance approval step and returns to ReviewPending.
func (w *Wizard) Approve(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if w.state != StateReviewPending {
		w.mu.Unlock()
		return Snapshot{}, ErrInvalidTransition
	}
	if w.authoritative == nil || w.authoritative.Provenance != Authoritative {
		w.mu.Unlock()
		return Snapshot{}, ErrStaleTerms
	}
	if !w.approval.NeedsApproval {
		w.mu.Unlock()
		return w.Snapshot(), nil
	}
	session := w.session
	token := w.draft.Token
	spender := w.network.LendingContract
	required := w.authoritative.RequiredAllowance()
	w.state = StateApproving
	w.mu.Unlock()

	approval, err := w.allowance.Approve(ctx, session, token, spender, required)
	if err != nil {
		w.mu.Lock()
		w.state = StateReviewPending
		w.mu.Unlock()
		return Snapshot{}, err
	}

	// The remote read path may lag transaction finality, so wait briefly
	// before trusting the re-read. Heuristic, not a correctness guarantee.
	w.settle(ctx)

	w.mu.Lock()
	w.approval = approval
	w.state = StateReviewPending
	w.mu.Unlock()
	return w.Snapshot(), nil
}

// Confirm runs the final preflight and submits the origination transaction.
// It is the only path into the terminal states.
func (w *Wizard) Confirm(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if w.state != StateReviewPending {
		w.mu.Unlock()
		return Snapshot{}, ErrInvalidTransition
	}
	if w.authoritative == nil || w.authoritative.Provenance != Authoritative {
		w.mu.Unlock()
		return Snapshot{}, ErrStaleTerms
	}
	terms := w.authoritative.Clone()
	draft := w.draft
	session := w.session
	network := w.network
	tier, ok := w.tiers.Find(draft.TierName)
	if !ok {
		w.mu.Unlock()
		return Snapshot{}, fmt.Errorf("origination: unknown tier %q", draft.TierName)
	}
	w.mu.Unlock()

	// Full preflight immediately before submission: the review-time pass may
	// be stale by now and gas is cheaper to save than to waste.
	if err := w.validator.Validate(ctx, w.validationInput(terms)); err != nil {
		return Snapshot{}, err
	}

	w.mu.Lock()
	if w.state != StateReviewPending || !draftEqual(w.draft, draft) {
		w.mu.Unlock()
		return Snapshot{}, ErrStaleTerms
	}
	w.state = StateSubmitting
	w.mu.Unlock()

	accountID := draft.AccountID
	if accountID == nil {
		accountID = big.NewInt(0)
	}
	result := w.submitter.Submit(ctx, OriginationParams{
		TokenID:         draft.TokenID,
		AccountID:       accountID,
		DurationSeconds: draft.DurationSeconds,
		Principal:       draft.Principal,
		TokenAddress:    draft.Token.Address,
		OriginChainID:   network.ChainID,
		Borrower:        session.Address,
	}, tier, session)

	w.mu.Lock()
	w.result = &result
	if result.Succeeded() {
		w.state = StateCompleted
	} else {
		w.state = StateFailed
	}
	w.mu.Unlock()

	if result.Succeeded() {
		w.settle(ctx)
	}
	return w.Snapshot(), nil
}

// validationInput assembles the preflight input from current flow state.
func (w *Wizard) validationInput(terms *LoanTerms) ValidationInput {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ValidationInput{
		Session:         w.session,
		Network:         w.network,
		Position:        w.positionForLocked(w.draft.TokenID),
		Terms:           terms,
		Token:           w.draft.Token,
		Principal:       w.draft.Principal,
		DurationSeconds: w.draft.DurationSeconds,
	}
}

func (w *Wizard) positionForLocked(tokenID *big.Int) *AssetPosition {
	if tokenID == nil {
		return nil
	}
	for i := range w.positions {
		if w.positions[i].TokenID != nil && w.positions[i].TokenID.Cmp(tokenID) == 0 {
			return &w.positions[i]
		}
	}
	return nil
}

func (w *Wizard) resetDraftLocked() {
	w.draft = Draft{}
	w.provisional = nil
	w.authoritative = nil
	w.approval = ApprovalState{}
	w.positions = nil
}

// settle sleeps for the configured settle delay, honouring cancellation.
func (w *Wizard) settle(ctx context.Context) {
	if w.settleDelay <= 0 {
		return
	}
	timer := time.NewTimer(w.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func draftEqual(a, b Draft) bool {
	if a.TierName != b.TierName || a.DurationSeconds != b.DurationSeconds || a.Token.Address != b.Token.Address {
		return false
	}
	if (a.TokenID == nil) != (b.TokenID == nil) || (a.Principal == nil) != (b.Principal == nil) {
		return false
	}
	if a.TokenID != nil && a.TokenID.Cmp(b.TokenID) != 0 {
		return false
	}
	if a.Principal != nil && a.Principal.Cmp(b.Principal) != 0 {
		return false
	}
	return true
}
