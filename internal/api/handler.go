package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
	"github.com/mtlprog/fundfee/internal/fee"
	"github.com/mtlprog/fundfee/internal/feemanager"
	"github.com/mtlprog/fundfee/internal/fund"
	"github.com/mtlprog/fundfee/internal/oracle"
	"github.com/mtlprog/fundfee/internal/protocolfee"
	"github.com/mtlprog/fundfee/internal/store"
	"github.com/mtlprog/fundfee/internal/valuation"
	"github.com/mtlprog/fundfee/internal/vault"
)

const maxBodyBytes = 1 << 20

// RateBook exposes the currently published rates.
type RateBook interface {
	Book() *oracle.Book
}

// Handler provides HTTP endpoints for the fee engine.
type Handler struct {
	funds *fund.Service
	rates RateBook // optional
}

// NewHandler creates a new API handler.
func NewHandler(funds *fund.Service, rates RateBook) *Handler {
	return &Handler{funds: funds, rates: rates}
}

// ListFunds handles GET /api/v1/funds.
func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.funds.List(r.Context())
	if err != nil {
		h.fail(w, "list funds", err)
		return
	}
	writeJSON(w, http.StatusOK, funds)
}

type createFundRequest struct {
	ID             domain.FundID  `json:"id"`
	Denomination   domain.AssetID `json:"denomination"`
	Owner          string         `json:"owner"`
	Account        string         `json:"account"`
	SharePrecision *uint8         `json:"sharePrecision"`
}

// CreateFund handles POST /api/v1/funds.
func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req createFundRequest
	if !readJSON(w, r, &req) {
		return
	}
	f := domain.Fund{
		ID:             req.ID,
		Denomination:   req.Denomination,
		Owner:          req.Owner,
		Account:        req.Account,
		SharePrecision: domain.DefaultSharePrecision,
	}
	if f.Denomination == "" {
		f.Denomination = domain.EURMTLAssetID
	}
	if req.SharePrecision != nil {
		f.SharePrecision = *req.SharePrecision
	}

	created, err := h.funds.Create(r.Context(), f)
	if err != nil {
		h.fail(w, "create fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetFund handles GET /api/v1/funds/{id}.
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	f, err := h.funds.Get(r.Context(), fundID(r))
	if err != nil {
		h.fail(w, "get fund", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// GetValue handles GET /api/v1/funds/{id}/value.
func (h *Handler) GetValue(w http.ResponseWriter, r *http.Request) {
	v, err := h.funds.Value(r.Context(), fundID(r))
	if err != nil {
		h.fail(w, "value fund", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListSettlements handles GET /api/v1/funds/{id}/settlements.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 500
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}

	batches, err := h.funds.Settlements(r.Context(), fundID(r), limit)
	if err != nil {
		h.fail(w, "list settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

type feeSetting struct {
	Type   domain.FeeType  `json:"type"`
	Config json.RawMessage `json:"config"`
}

// AttachFees handles POST /api/v1/funds/{id}/fees. The body is a list of
// {"type", "config"} objects; configs use the fee's msgpack field names.
func (h *Handler) AttachFees(w http.ResponseWriter, r *http.Request) {
	var req []feeSetting
	if !readJSON(w, r, &req) {
		return
	}
	settings := make([]feemanager.Setting, 0, len(req))
	for _, s := range req {
		data, err := configToMsgpack(s.Config)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("fee %s: %v", s.Type, err))
			return
		}
		settings = append(settings, feemanager.Setting{Type: s.Type, Config: data})
	}

	id := fundID(r)
	if err := h.funds.AttachFees(r.Context(), id, settings); err != nil {
		h.fail(w, "attach fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fundId": id, "attached": len(settings)})
}

type dispatchRequest struct {
	Hook    string         `json:"hook"`
	Payload domain.Payload `json:"payload"`
}

// Dispatch handles POST /api/v1/funds/{id}/dispatch.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	hook, err := domain.ParseHook(req.Hook)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.funds.Dispatch(r.Context(), fundID(r), hook, req.Payload)
	if err != nil {
		h.fail(w, "dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type protocolFeeRequest struct {
	Bps *uint32 `json:"bps"`
}

// SetProtocolFee handles PUT /api/v1/funds/{id}/protocol-fee.
func (h *Handler) SetProtocolFee(w http.ResponseWriter, r *http.Request) {
	var req protocolFeeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Bps == nil {
		writeError(w, http.StatusBadRequest, "bps is required")
		return
	}

	res, err := h.funds.SetProtocolFee(r.Context(), fundID(r), *req.Bps)
	if err != nil {
		h.fail(w, "set protocol fee", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Payout handles POST /api/v1/funds/{id}/payout.
func (h *Handler) Payout(w http.ResponseWriter, r *http.Request) {
	res, err := h.funds.Payout(r.Context(), fundID(r))
	if err != nil {
		h.fail(w, "payout", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type buyRequest struct {
	Investor string      `json:"investor"`
	Amount   sdkmath.Int `json:"amount"`
}

// Buy handles POST /api/v1/funds/{id}/buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := h.funds.Buy(r.Context(), fundID(r), req.Investor, req.Amount)
	if err != nil {
		h.fail(w, "buy", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type redeemRequest struct {
	Investor string      `json:"investor"`
	Shares   sdkmath.Int `json:"shares"`
}

// Redeem handles POST /api/v1/funds/{id}/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := h.funds.Redeem(r.Context(), fundID(r), req.Investor, req.Shares)
	if err != nil {
		h.fail(w, "redeem", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SyncHoldings handles POST /api/v1/funds/{id}/sync.
func (h *Handler) SyncHoldings(w http.ResponseWriter, r *http.Request) {
	id := fundID(r)
	if err := h.funds.SyncHoldings(r.Context(), id); err != nil {
		h.fail(w, "sync holdings", err)
		return
	}
	f, err := h.funds.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get fund", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Tick handles POST /api/v1/funds/{id}/tick. A partially failed tick still returns the
// steps that ran, with the error alongside.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	res, err := h.funds.Tick(r.Context(), fundID(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.fail(w, "tick", err)
			return
		}
		slog.Warn("tick completed with errors", "fund", res.FundID, "error", err)
		writeJSON(w, http.StatusMultiStatus, map[string]any{"result": res, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListRates handles GET /api/v1/rates.
func (h *Handler) ListRates(w http.ResponseWriter, _ *http.Request) {
	if h.rates == nil {
		writeJSON(w, http.StatusOK, []oracle.Quote{})
		return
	}
	writeJSON(w, http.StatusOK, h.rates.Book().Quotes())
}

func fundID(r *http.Request) domain.FundID {
	return domain.FundID(r.PathValue("id"))
}

// fail maps engine errors onto HTTP statuses. Unexpected errors are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrFundExists),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, feemanager.ErrDuplicateFee),
		errors.Is(err, feemanager.ErrReentrantDispatch),
		errors.Is(err, protocolfee.ErrReentrant):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidFund),
		errors.Is(err, fund.ErrInvalidAmount),
		errors.Is(err, fund.ErrNoAccount),
		errors.Is(err, fee.ErrInvalidConfig),
		errors.Is(err, feemanager.ErrUnknownFeeType),
		errors.Is(err, protocolfee.ErrInvalidBps),
		errors.Is(err, vault.ErrInsufficientShares):
		return http.StatusBadRequest
	case errors.Is(err, valuation.ErrInvalidValuation),
		errors.Is(err, domain.ErrInvariant):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
