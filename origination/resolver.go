package origination

import (
	"context"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"rwalend/ledger"
	"rwalend/observability"
)

// PositionReader is the slice of the ledger surface the resolver consumes.
type PositionReader interface {
	UserInvestments(ctx context.Context, owner common.Address) (ledger.InvestmentSet, error)
	UserLoans(ctx context.Context, borrower common.Address) ([]*big.Int, error)
	LoanByID(ctx context.Context, id *big.Int) (ledger.LoanRecord, error)
	PositionDocument(ctx context.Context, tokenID *big.Int) (string, error)
}

// Resolver builds the authoritative list of a wallet's collateralizable
// positions from ledger reads plus optional off-chain display metadata.
type Resolver struct {
	reader   PositionReader
	metadata *MetadataResolver
	log      *slog.Logger
	diag     DiagnosticSink
}

// NewResolver wires a resolver. A nil metadata resolver disables document
// resolution entirely and every position falls back to synthesized text.
func NewResolver(reader PositionReader, metadata *MetadataResolver, log *slog.Logger, diag DiagnosticSink) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if diag == nil {
		diag = NopDiagnostics{}
	}
	return &Resolver{reader: reader, metadata: metadata, log: log, diag: diag}
}

// Resolve fetches a fresh immutable snapshot of the owner's positions.
//
// Collateralization is approximated conservatively: the ledger exposes no
// index from a loan back to the position securing it, so whenever the owner
// has any active loan every position is flagged collateralized. Do not
// narrow this without confirming the ledger actually exposes the mapping.
//
// A disconnected session returns ErrDisconnected with no ledger traffic;
// callers treat that as a state, not a failure. Ledger read failures return
// a typed FetchError and previous results must not be reused.
func (r *Resolver) Resolve(ctx context.Context, session ledger.Session, network ledger.NetworkContext) ([]AssetPosition, error) {
	if !session.Active() {
		observability.Origination().RecordResolution("disconnected")
		return nil, ErrDisconnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	investments, err := r.reader.UserInvestments(ctx, session.Address)
	if err != nil {
		observability.Origination().RecordResolution("fetch_error")
		return nil, &FetchError{Op: "investments", Err: err}
	}

	hasActiveLoan, err := r.ownerHasActiveLoan(ctx, session.Address)
	if err != nil {
		observability.Origination().RecordResolution("fetch_error")
		return nil, &FetchError{Op: "loans", Err: err}
	}

	positions := make([]AssetPosition, 0, investments.Len())
	for i := 0; i < investments.Len(); i++ {
		position := AssetPosition{
			Owner:          session.Address,
			Authorized:     investments.Authorized[i],
			Collateralized: hasActiveLoan,
		}
		if investments.TokenIDs[i] != nil {
			position.TokenID = new(big.Int).Set(investments.TokenIDs[i])
		}
		if investments.Amounts[i] != nil {
			position.CustodyAmount = new(big.Int).Set(investments.Amounts[i])
			position.InvestmentAmount = new(big.Int).Set(investments.Amounts[i])
		}
		position.Display = r.resolveDisplay(ctx, position.TokenID)
		positions = append(positions, position)
	}

	r.diag.Event("positions_resolved", map[string]string{
		"count":       strconv.Itoa(len(positions)),
		"active_loan": boolString(hasActiveLoan),
	})
	observability.Origination().RecordResolution("ok")
	return positions, nil
}

// ownerHasActiveLoan walks the owner's loan set and reports whether any loan
// is still active. Individual record read failures are non-fatal: a degraded
// collateralization view is preferable to blocking the whole resolution, so
// they are logged and the loan is assumed active.
func (r *Resolver) ownerHasActiveLoan(ctx context.Context, owner common.Address) (bool, error) {
	loanIDs, err := r.reader.UserLoans(ctx, owner)
	if err != nil {
		return false, err
	}
	for _, id := range loanIDs {
		record, err := r.reader.LoanByID(ctx, id)
		if err != nil {
			r.log.Warn("loan record read failed, assuming active",
				"loan_id", id.String(), "error", err.Error())
			return true, nil
		}
		if record.Active {
			return true, nil
		}
	}
	return false, nil
}

// resolveDisplay attempts document resolution and falls back to synthesized
// text. Metadata failures are intentionally non-fatal and only logged.
func (r *Resolver) resolveDisplay(ctx context.Context, tokenID *big.Int) DisplayMetadata {
	fallback := SynthesizeDisplay(tokenID)
	if r.metadata == nil {
		return fallback
	}
	raw, err := r.reader.PositionDocument(ctx, tokenID)
	if err != nil {
		r.log.Warn("position document read failed", "token_id", fallback.Name, "error", err.Error())
		return fallback
	}
	meta, err := r.metadata.Resolve(ctx, raw)
	if err != nil {
		r.log.Warn("position document resolution failed", "token_id", fallback.Name, "error", err.Error())
		return fallback
	}
	if meta.Source == DocumentAbsent {
		return fallback
	}
	if meta.Name == "" {
		meta.Name = fallback.Name
	}
	return meta
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
