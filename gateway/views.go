package gateway

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"rwalend/origination"
)

// TermsView is the JSON rendering of a quote. Amounts are decimal strings in
// token minor units.
type TermsView struct {
	Principal         string `json:"principal"`
	DurationSeconds   uint64 `json:"durationSeconds"`
	InterestRateBps   uint64 `json:"interestRateBps"`
	TotalDebt         string `json:"totalDebt"`
	BufferAmount      string `json:"bufferAmount"`
	MonthlyPayment    string `json:"monthlyPayment"`
	RequiredAllowance string `json:"requiredAllowance"`
	Provenance        string `json:"provenance"`
}

// PositionView is the JSON rendering of one collateral position.
type PositionView struct {
	TokenID        string `json:"tokenId"`
	Authorized     bool   `json:"authorized"`
	Collateralized bool   `json:"collateralized"`
	Eligible       bool   `json:"eligible"`
	CustodyAmount  string `json:"custodyAmount"`
	DisplayValue   string `json:"displayValue"`
	Name           string `json:"name"`
	AssetType      string `json:"assetType"`
	Location       string `json:"location,omitempty"`
	DocumentSource string `json:"documentSource"`
}

// ApprovalView is the JSON rendering of the allowance picture.
type ApprovalView struct {
	CurrentAllowance  string `json:"currentAllowance"`
	RequiredAllowance string `json:"requiredAllowance"`
	NeedsApproval     bool   `json:"needsApproval"`
	Approving         bool   `json:"approving"`
}

// ResultView is the JSON rendering of a terminal submission outcome.
type ResultView struct {
	TxHash        string `json:"txHash,omitempty"`
	ReceiptStatus uint64 `json:"receiptStatus"`
	Error         string `json:"error,omitempty"`
}

// SnapshotView is the JSON rendering of the whole wizard.
type SnapshotView struct {
	ID            string         `json:"id"`
	State         string         `json:"state"`
	Positions     []PositionView `json:"positions"`
	Provisional   *TermsView     `json:"provisional,omitempty"`
	Authoritative *TermsView     `json:"authoritative,omitempty"`
	Approval      *ApprovalView  `json:"approval,omitempty"`
	Result        *ResultView    `json:"result,omitempty"`
}

func snapshotView(snap origination.Snapshot) SnapshotView {
	view := SnapshotView{
		ID:            snap.ID.String(),
		State:         string(snap.State),
		Positions:     positionViews(snap.Positions),
		Provisional:   termsView(snap.Provisional),
		Authoritative: termsView(snap.Authoritative),
	}
	if snap.Approval.RequiredAllowance != nil {
		view.Approval = &ApprovalView{
			CurrentAllowance:  bigString(snap.Approval.CurrentAllowance),
			RequiredAllowance: bigString(snap.Approval.RequiredAllowance),
			NeedsApproval:     snap.Approval.NeedsApproval,
			Approving:         snap.Approval.Approving,
		}
	}
	if snap.Result != nil {
		result := &ResultView{ReceiptStatus: snap.Result.ReceiptStatus}
		if snap.Result.TxHash != (common.Hash{}) {
			result.TxHash = snap.Result.TxHash.Hex()
		}
		if snap.Result.Err != nil {
			result.Error = snap.Result.Err.Error()
		}
		view.Result = result
	}
	return view
}

func termsView(terms *origination.LoanTerms) *TermsView {
	if terms == nil {
		return nil
	}
	return &TermsView{
		Principal:         bigString(terms.Principal),
		DurationSeconds:   terms.DurationSeconds,
		InterestRateBps:   terms.InterestRateBps,
		TotalDebt:         bigString(terms.TotalDebt),
		BufferAmount:      bigString(terms.BufferAmount),
		MonthlyPayment:    bigString(terms.MonthlyPayment),
		RequiredAllowance: terms.RequiredAllowance().String(),
		Provenance:        string(terms.Provenance),
	}
}

func positionViews(positions []origination.AssetPosition) []PositionView {
	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		position := &positions[i]
		views = append(views, PositionView{
			TokenID:        bigString(position.TokenID),
			Authorized:     position.Authorized,
			Collateralized: position.Collateralized,
			Eligible:       position.CanBeCollateralized(),
			CustodyAmount:  bigString(position.CustodyAmount),
			DisplayValue:   position.DisplayValue().String(),
			Name:           position.Display.Name,
			AssetType:      position.Display.AssetType,
			Location:       position.Display.Location,
			DocumentSource: string(position.Display.Source),
		})
	}
	return views
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// writeOriginationError maps the engine's error taxonomy onto HTTP statuses.
func writeOriginationError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err)
}

func statusFor(err error) int {
	var fetchErr *origination.FetchError
	if errors.As(err, &fetchErr) {
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, origination.ErrDisconnected),
		errors.Is(err, origination.ErrInvalidTransition),
		errors.Is(err, origination.ErrApprovalInFlight),
		errors.Is(err, origination.ErrUserRejected),
		errors.Is(err, origination.ErrCollateralized),
		errors.Is(err, origination.ErrLoanExists),
		errors.Is(err, origination.ErrStaleTerms):
		return http.StatusConflict
	case errors.Is(err, origination.ErrNetworkMismatch),
		errors.Is(err, origination.ErrDurationOutOfRange),
		errors.Is(err, origination.ErrInvalidPaymentSchedule):
		return http.StatusBadRequest
	case errors.Is(err, origination.ErrOwnership),
		errors.Is(err, origination.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, origination.ErrAllowanceInsufficient),
		errors.Is(err, origination.ErrBalanceInsufficient),
		errors.Is(err, origination.ErrLiquidityInsufficient),
		errors.Is(err, origination.ErrInsufficientCollateral),
		errors.Is(err, origination.ErrContractValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, origination.ErrGasEstimation),
		errors.Is(err, origination.ErrExecutionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
