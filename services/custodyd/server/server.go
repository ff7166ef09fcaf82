// Package server exposes the custody engine over an authenticated HTTP API.
package server

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	nativecommon "poolcustody/native/common"
	"poolcustody/native/custody"
	"poolcustody/observability"
)

const maxRequestBody = 1 << 20

// Engine is the subset of the custody engine consumed by the HTTP handlers.
// *custody.Engine satisfies it.
type Engine interface {
	Deposit(user, asset common.Address, amount *big.Int) (*big.Int, error)
	Withdraw(user, asset common.Address, amount *big.Int) (*big.Int, error)
	WithdrawAll(user, asset common.Address) (*big.Int, error)
	Borrow(user, asset common.Address, amount *big.Int) (*big.Int, error)
	Repay(user, asset common.Address, amount *big.Int) (*big.Int, error)
	RepayAll(user, asset common.Address) (*big.Int, error)
	ScaledSupplyOf(user, asset common.Address) *big.Int
	ScaledDebtOf(user, asset common.Address) *big.Int
	UnderlyingSupplyOf(user, asset common.Address) (*big.Int, error)
	UnderlyingDebtOf(user, asset common.Address) (*big.Int, error)
	Registry() *custody.AssetRegistry
}

// Server wires the custody engine behind the HTTP routes.
type Server struct {
	engine  Engine
	pauses  *nativecommon.PauseSwitch
	logger  *slog.Logger
	metrics *observability.CustodyMetrics
	router  http.Handler
	nowFn   func() time.Time
}

// New constructs a configured HTTP router around the engine. The pause switch
// may be nil when the deployment never pauses.
func New(engine Engine, pauses *nativecommon.PauseSwitch, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:  engine,
		pauses:  pauses,
		logger:  logger,
		metrics: observability.Custody(),
		nowFn:   time.Now,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/assets", s.handleAssets)
	r.Get("/positions/{user}/{asset}", s.handlePosition)

	r.Post("/deposit", s.operation("deposit", func(req operationRequest) (*big.Int, error) {
		return s.engine.Deposit(req.user, req.asset, req.amount)
	}))
	r.Post("/withdraw", s.operation("withdraw", func(req operationRequest) (*big.Int, error) {
		return s.engine.Withdraw(req.user, req.asset, req.amount)
	}))
	r.Post("/withdraw-all", s.closeout("withdraw_all", func(req operationRequest) (*big.Int, error) {
		return s.engine.WithdrawAll(req.user, req.asset)
	}))
	r.Post("/borrow", s.operation("borrow", func(req operationRequest) (*big.Int, error) {
		return s.engine.Borrow(req.user, req.asset, req.amount)
	}))
	r.Post("/repay", s.operation("repay", func(req operationRequest) (*big.Int, error) {
		return s.engine.Repay(req.user, req.asset, req.amount)
	}))
	r.Post("/repay-all", s.closeout("repay_all", func(req operationRequest) (*big.Int, error) {
		return s.engine.RepayAll(req.user, req.asset)
	}))

	r.Post("/admin/pause", s.handlePause)
	r.Post("/admin/resume", s.handleResume)

	return r
}

type operationPayload struct {
	User   string       `json:"user"`
	Asset  string       `json:"asset"`
	Amount *hexutil.Big `json:"amount,omitempty"`
}

type operationRequest struct {
	user   common.Address
	asset  common.Address
	amount *big.Int
}

type operationResponse struct {
	ID     string       `json:"id"`
	User   string       `json:"user"`
	Asset  string       `json:"asset"`
	Result *hexutil.Big `json:"result"`
	Time   string       `json:"time"`
}

type positionResponse struct {
	User             string       `json:"user"`
	Asset            string       `json:"asset"`
	ScaledSupply     *hexutil.Big `json:"scaledSupply"`
	ScaledDebt       *hexutil.Big `json:"scaledDebt"`
	UnderlyingSupply *hexutil.Big `json:"underlyingSupply"`
	UnderlyingDebt   *hexutil.Big `json:"underlyingDebt"`
}

type assetResponse struct {
	Asset           string `json:"asset"`
	Position        int    `json:"position"`
	DepositsEnabled bool   `json:"depositsEnabled"`
	BorrowsEnabled  bool   `json:"borrowsEnabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// operation builds a POST handler for an amount-carrying workflow.
func (s *Server) operation(name string, call func(operationRequest) (*big.Int, error)) http.HandlerFunc {
	return s.workflow(name, true, call)
}

// closeout builds a POST handler for a full-position workflow that carries no
// amount.
func (s *Server) closeout(name string, call func(operationRequest) (*big.Int, error)) http.HandlerFunc {
	return s.workflow(name, false, call)
}

func (s *Server) workflow(name string, wantAmount bool, call func(operationRequest) (*big.Int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.decodeOperation(w, r, wantAmount)
		if err != nil {
			s.metrics.RecordReject(name, "bad_payload")
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		started := s.nowFn()
		result, err := call(req)
		s.metrics.Observe(name, s.nowFn().Sub(started), err)
		if err != nil {
			s.logger.Warn("workflow rejected",
				slog.String("operation", name),
				slog.String("asset", req.asset.Hex()),
				slog.String("error", err.Error()),
			)
			s.writeError(w, statusFor(err), err)
			return
		}
		s.writeJSON(w, http.StatusOK, operationResponse{
			ID:     uuid.NewString(),
			User:   req.user.Hex(),
			Asset:  req.asset.Hex(),
			Result: (*hexutil.Big)(result),
			Time:   started.UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) decodeOperation(w http.ResponseWriter, r *http.Request, wantAmount bool) (operationRequest, error) {
	var payload operationPayload
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&payload); err != nil {
		return operationRequest{}, err
	}
	user, err := parseAddress(payload.User)
	if err != nil {
		return operationRequest{}, err
	}
	asset, err := parseAddress(payload.Asset)
	if err != nil {
		return operationRequest{}, err
	}
	req := operationRequest{user: user, asset: asset}
	if wantAmount {
		req.amount = (*big.Int)(payload.Amount)
	}
	return req, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, custody.ErrZeroAddress
	}
	return common.HexToAddress(raw), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	paused := s.pauses != nil && s.pauses.IsPaused("")
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "paused": paused})
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	registry := s.engine.Registry()
	assets := registry.OrderedAssets()
	out := make([]assetResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetResponse{
			Asset:           asset.Hex(),
			Position:        registry.ListingPosition(asset),
			DepositsEnabled: registry.DepositsEnabled(asset),
			BorrowsEnabled:  registry.BorrowsEnabled(asset),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	asset, err := parseAddress(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.engine.Registry().IsListed(asset) {
		s.writeError(w, http.StatusNotFound, custody.ErrAssetNotListed)
		return
	}
	underlyingSupply, err := s.engine.UnderlyingSupplyOf(user, asset)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	underlyingDebt, err := s.engine.UnderlyingDebtOf(user, asset)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, positionResponse{
		User:             user.Hex(),
		Asset:            asset.Hex(),
		ScaledSupply:     (*hexutil.Big)(s.engine.ScaledSupplyOf(user, asset)),
		ScaledDebt:       (*hexutil.Big)(s.engine.ScaledDebtOf(user, asset)),
		UnderlyingSupply: (*hexutil.Big)(underlyingSupply),
		UnderlyingDebt:   (*hexutil.Big)(underlyingDebt),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	if s.pauses == nil {
		s.writeError(w, http.StatusNotImplemented, nativecommon.ErrModulePaused)
		return
	}
	s.pauses.Pause()
	s.metrics.SetPause(true)
	s.logger.Info("custody workflows paused")
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	if s.pauses == nil {
		s.writeError(w, http.StatusNotImplemented, nativecommon.ErrModulePaused)
		return
	}
	s.pauses.Resume()
	s.metrics.SetPause(false)
	s.logger.Info("custody workflows resumed")
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
