package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rwalend/ledger"
	"rwalend/origination"
	"rwalend/storage"
)

// requestLimit caps request bodies. Nothing the dashboard sends is
// legitimately larger.
const requestLimit = 1 << 20 // 1 MiB

// SessionFactory produces a signing session for a chain. The daemon binds
// this to its configured key; embedding hosts bind it to their wallet bridge.
type SessionFactory func(chainID uint64) (ledger.Session, error)

// WizardFactory produces a fresh wizard wired to the engine components for
// one chain.
type WizardFactory func(chainID uint64) (*origination.Wizard, error)

// Config wires the HTTP server.
type Config struct {
	Registry    *ledger.Registry
	Sessions    SessionFactory
	NewWizard   WizardFactory
	Store       *storage.Store
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Log         *slog.Logger
}

type wizardEntry struct {
	wizard  *origination.Wizard
	chainID uint64
	session ledger.Session
	network ledger.NetworkContext
}

// Server exposes the origination flow and the display cache over HTTP.
type Server struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	wizards map[uuid.UUID]*wizardEntry
}

// NewServer validates the wiring and builds the server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("network registry required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session factory required")
	}
	if cfg.NewWizard == nil {
		return nil, fmt.Errorf("wizard factory required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, log: log, wizards: make(map[uuid.UUID]*wizardEntry)}, nil
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if s.cfg.RateLimiter != nil {
			v1.Use(s.cfg.RateLimiter.Middleware("api"))
		}
		v1.Use(limitBody)

		v1.Get("/positions", s.listCachedPositions)
		v1.Get("/originations", s.listOriginations)

		v1.Group(func(priv chi.Router) {
			priv.Use(s.cfg.Auth.Middleware)
			priv.Post("/wizards", s.createWizard)
			priv.Route("/wizards/{wizardID}", func(wr chi.Router) {
				wr.Get("/", s.getWizard)
				wr.Post("/connect", s.connectWizard)
				wr.Post("/positions", s.refreshPositions)
				wr.Put("/draft", s.setDraft)
				wr.Post("/review", s.review)
				wr.Post("/approve", s.approve)
				wr.Post("/confirm", s.confirm)
			})
		})
	})

	return otelhttp.NewHandler(r, "gateway")
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, requestLimit)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) entry(r *http.Request) (*wizardEntry, error) {
	id, err := uuid.Parse(chi.URLParam(r, "wizardID"))
	if err != nil {
		return nil, fmt.Errorf("invalid wizard id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.wizards[id]
	if !ok {
		return nil, fmt.Errorf("wizard %s not found", id)
	}
	return entry, nil
}

type createRequest struct {
	ChainID uint64 `json:"chainId"`
}

// createWizard starts a flow bound to one chain. The wizard's engine
// components are wired against that chain's contracts; switching chains means
// starting a new wizard.
func (s *Server) createWizard(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	network, err := s.cfg.Registry.Resolve(req.ChainID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	wizard, err := s.cfg.NewWizard(req.ChainID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	s.mu.Lock()
	s.wizards[wizard.ID()] = &wizardEntry{wizard: wizard, chainID: req.ChainID, network: network}
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    wizard.ID().String(),
		"state": string(origination.StateDisconnected),
	})
}

func (s *Server) getWizard(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView(entry.wizard.Snapshot()))
}

type connectRequest struct {
	ChainID uint64 `json:"chainId"`
}

func (s *Server) connectWizard(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.ChainID != entry.chainID {
		writeJSONError(w, http.StatusBadRequest,
			fmt.Errorf("wizard is bound to chain %d; start a new wizard for chain %d", entry.chainID, req.ChainID))
		return
	}
	session, err := s.cfg.Sessions(req.ChainID)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	if err := entry.wizard.Connect(session, entry.network); err != nil {
		writeOriginationError(w, err)
		return
	}
	s.mu.Lock()
	entry.session = session
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, snapshotView(entry.wizard.Snapshot()))
}

func (s *Server) refreshPositions(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	positions, err := entry.wizard.LoadPositions(r.Context())
	if err != nil {
		writeOriginationError(w, err)
		return
	}
	if s.cfg.Store != nil {
		if err := s.cfg.Store.ReplacePositions(r.Context(), entry.session.Address, entry.network.ChainID, positions); err != nil {
			s.log.Warn("position cache refresh failed", "error", err.Error())
		}
	}
	writeJSON(w, http.StatusOK, positionViews(positions))
}

type draftRequest struct {
	TokenID         string `json:"tokenId"`
	Tier            string `json:"tier"`
	Principal       string `json:"principal"`
	DurationSeconds uint64 `json:"durationSeconds"`
	TokenSymbol     string `json:"tokenSymbol"`
	AccountID       string `json:"accountId,omitempty"`
}

func (s *Server) setDraft(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	draft, err := s.buildDraft(entry, req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	terms, err := entry.wizard.SetDraft(draft)
	if err != nil {
		writeOriginationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provisional": termsView(terms),
	})
}

func (s *Server) buildDraft(entry *wizardEntry, req draftRequest) (origination.Draft, error) {
	draft := origination.Draft{
		TierName:        strings.TrimSpace(req.Tier),
		DurationSeconds: req.DurationSeconds,
	}
	tokenID, err := parseAmount(req.TokenID, "tokenId")
	if err != nil {
		return origination.Draft{}, err
	}
	draft.TokenID = tokenID
	principal, err := parseAmount(req.Principal, "principal")
	if err != nil {
		return origination.Draft{}, err
	}
	draft.Principal = principal
	if req.AccountID != "" {
		accountID, err := parseAmount(req.AccountID, "accountId")
		if err != nil {
			return origination.Draft{}, err
		}
		draft.AccountID = accountID
	}
	token, ok := entry.network.TokenBySymbol(req.TokenSymbol)
	if !ok {
		return origination.Draft{}, fmt.Errorf("unsupported token %q", req.TokenSymbol)
	}
	draft.Token = token
	return draft, nil
}

func (s *Server) review(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	snap, err := entry.wizard.Review(r.Context())
	if err != nil {
		writeOriginationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView(snap))
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	snap, err := entry.wizard.Approve(r.Context())
	if err != nil {
		writeOriginationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView(snap))
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	entry, err := s.entry(r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	snap, err := entry.wizard.Confirm(r.Context())
	if err != nil {
		writeOriginationError(w, err)
		return
	}
	s.recordOutcome(r, entry, snap)
	writeJSON(w, http.StatusOK, snapshotView(snap))
}

// recordOutcome persists the terminal snapshot for history views; failures
// degrade history, never the response.
func (s *Server) recordOutcome(r *http.Request, entry *wizardEntry, snap origination.Snapshot) {
	if s.cfg.Store == nil || snap.Result == nil {
		return
	}
	row := storage.OriginationRow{
		WizardID:        snap.ID.String(),
		Owner:           entry.session.Address.Hex(),
		ChainID:         entry.network.ChainID,
		Principal:       bigString(snap.Draft.Principal),
		DurationSeconds: snap.Draft.DurationSeconds,
		State:           string(snap.State),
	}
	if snap.Draft.TokenID != nil {
		row.TokenID = snap.Draft.TokenID.String()
	}
	if snap.Authoritative != nil {
		row.TotalDebt = bigString(snap.Authoritative.TotalDebt)
	}
	if snap.Result.TxHash != (common.Hash{}) {
		row.TxHash = snap.Result.TxHash.Hex()
	}
	if snap.Result.Err != nil {
		row.FailureReason = snap.Result.Err.Error()
	}
	if err := s.cfg.Store.RecordOrigination(r.Context(), row); err != nil {
		s.log.Warn("origination history write failed", "error", err.Error())
	}
}

func (s *Server) listCachedPositions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeJSONError(w, http.StatusNotFound, errors.New("display cache disabled"))
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if !common.IsHexAddress(owner) {
		writeJSONError(w, http.StatusBadRequest, errors.New("owner must be a hex address"))
		return
	}
	chainID, err := strconv.ParseUint(r.URL.Query().Get("chainId"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, errors.New("chainId must be a decimal integer"))
		return
	}
	rows, err := s.cfg.Store.ListPositions(r.Context(), common.HexToAddress(owner), chainID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listOriginations(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeJSONError(w, http.StatusNotFound, errors.New("display cache disabled"))
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if !common.IsHexAddress(owner) {
		writeJSONError(w, http.StatusBadRequest, errors.New("owner must be a hex address"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.cfg.Store.ListOriginations(r.Context(), common.HexToAddress(owner), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAmount(raw, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative decimal integer", field)
	}
	return value, nil
}
