package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/auth"
	"github.com/kodix/kodix/internal/cashback"
	"github.com/kodix/kodix/internal/i18n"
	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/store"
	"github.com/kodix/kodix/internal/voucher"
	"github.com/kodix/kodix/internal/websocket"
)

const clientsPath = "/api/cashback/clients"

type CashbackHandler struct {
	cashbackStore *store.CashbackStore
	voucherStore  *store.VoucherStore
	redemptionCap float64
	broadcaster
	logger *slog.Logger
	now    func() time.Time
}

func NewCashbackHandler(cs *store.CashbackStore, vs *store.VoucherStore, redemptionCap float64, hub *websocket.Hub, logger *slog.Logger) *CashbackHandler {
	if redemptionCap == 0 {
		redemptionCap = voucher.DefaultCap
	}
	return &CashbackHandler{
		cashbackStore: cs,
		voucherStore:  vs,
		redemptionCap: redemptionCap,
		broadcaster:   broadcaster{hub},
		logger:        logger,
		now:           time.Now,
	}
}

func (h *CashbackHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCashback, ability.ActionRead, ability.SubjectClient, nil); !ok {
		return
	}
	clients, err := h.cashbackStore.ListClients(auth.TeamID(r.Context()))
	if err != nil {
		h.logger.Error("list clients", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list clients")
		return
	}
	if clients == nil {
		clients = []model.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

// loadClient reads the client in the path. A missing client answers 404.
func (h *CashbackHandler) loadClient(w http.ResponseWriter, r *http.Request) (*model.Client, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client ID")
		return nil, false
	}
	client, err := h.cashbackStore.GetClient(auth.TeamID(r.Context()), id)
	if err != nil {
		h.logger.Error("get client", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get client")
		return nil, false
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "client not found")
		return nil, false
	}
	return client, true
}

type clientDetailResponse struct {
	Client   model.Client     `json:"client"`
	Cashback cashback.Summary `json:"cashback"`
}

// GetClient returns the client's cashback position. A client that does not
// exist in the active team redirects to the client list.
func (h *CashbackHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCashback, ability.ActionRead, ability.SubjectClient, nil); !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		http.Redirect(w, r, clientsPath, http.StatusSeeOther)
		return
	}
	teamID := auth.TeamID(r.Context())
	client, err := h.cashbackStore.GetClient(teamID, id)
	if err != nil {
		h.logger.Error("get client", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get client")
		return
	}
	if client == nil {
		http.Redirect(w, r, clientsPath, http.StatusSeeOther)
		return
	}

	sales, err := h.cashbackStore.ListSalesWithCashbacks(teamID, client.ID)
	if err != nil {
		h.logger.Error("list sales", "error", err, "client_id", client.ID)
		writeError(w, http.StatusInternalServerError, "failed to load cashback")
		return
	}
	writeJSON(w, http.StatusOK, clientDetailResponse{Client: *client, Cashback: cashback.Compute(sales, h.now())})
}

type redemptionRequest struct {
	PurchaseTotal float64 `json:"purchase_total"`
}

func (h *CashbackHandler) decodePurchase(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var req redemptionRequest
	if !decodeJSON(w, r, &req) {
		return 0, false
	}
	if math.IsNaN(req.PurchaseTotal) || math.IsInf(req.PurchaseTotal, 0) || req.PurchaseTotal <= 0 {
		writeError(w, http.StatusBadRequest, "purchase_total must be positive")
		return 0, false
	}
	return req.PurchaseTotal, true
}

type redemptionResponse struct {
	voucher.Redemption
	Message string `json:"message,omitempty"`
}

// PreviewRedemption shows how much of a purchase the client's cashback
// would cover, without issuing anything.
func (h *CashbackHandler) PreviewRedemption(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCashback, ability.ActionRead, ability.SubjectClient, nil); !ok {
		return
	}
	client, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	purchase, ok := h.decodePurchase(w, r)
	if !ok {
		return
	}

	sales, err := h.cashbackStore.ListSalesWithCashbacks(client.TeamID, client.ID)
	if err != nil {
		h.logger.Error("list sales", "error", err, "client_id", client.ID)
		writeError(w, http.StatusInternalServerError, "failed to load cashback")
		return
	}
	var all []model.Cashback
	for _, s := range sales {
		all = append(all, s.Cashbacks...)
	}
	available := cashback.TotalRemaining(cashback.AvailableFragments(all, h.now()))

	resp := redemptionResponse{Redemption: voucher.ComputeRedemption(purchase, available, h.redemptionCap)}
	if !resp.CanRedeem {
		resp.Message = i18n.FromRequest(r).T(i18n.NothingToRedeem)
	}
	writeJSON(w, http.StatusOK, resp)
}

type voucherResponse struct {
	Voucher *model.Voucher `json:"voucher"`
	Message string         `json:"message"`
}

// CreateVoucher issues a voucher for the capped redemption. Amount and
// allocation are recomputed from the fragments read inside the store's
// transaction, so a stale preview cannot overdraw the client.
func (h *CashbackHandler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCashback, ability.ActionCreate, ability.SubjectVoucher, nil); !ok {
		return
	}
	client, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	purchase, ok := h.decodePurchase(w, r)
	if !ok {
		return
	}
	p := i18n.FromRequest(r)
	now := h.now()

	plan := func(cbs []model.Cashback) (float64, []model.VoucherCashback, error) {
		frags := cashback.AvailableFragments(cbs, now)
		red := voucher.ComputeRedemption(purchase, cashback.TotalRemaining(frags), h.redemptionCap)
		if !red.CanRedeem {
			return 0, nil, voucher.ErrNothingToRedeem
		}
		allocs, err := voucher.Allocate(frags, red.Amount)
		return red.Amount, allocs, err
	}

	v, err := h.voucherStore.Create(client.TeamID, client.ID, auth.UserID(r.Context()), purchase, plan)
	switch {
	case errors.Is(err, voucher.ErrNothingToRedeem):
		writeError(w, http.StatusBadRequest, p.T(i18n.NothingToRedeem))
		return
	case errors.Is(err, voucher.ErrInsufficientCashback):
		writeError(w, http.StatusConflict, p.T(i18n.InsufficientCredit))
		return
	case err != nil:
		h.logger.Error("create voucher", "error", err, "client_id", client.ID)
		writeError(w, http.StatusInternalServerError, "failed to create voucher")
		return
	}

	h.logger.Info("voucher created", "team_id", client.TeamID, "client_id", client.ID, "code", v.CodeNumber, "amount", v.Amount)
	h.broadcast(client.TeamID, websocket.NewMessage("voucher", "created", v.ID, map[string]any{"client_id": client.ID}))
	writeJSON(w, http.StatusCreated, voucherResponse{Voucher: v, Message: p.T(i18n.VoucherCreated, v.CodeNumber, v.Amount)})
}

func (h *CashbackHandler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, h.logger, ability.AppCashback, ability.ActionRead, ability.SubjectVoucher, nil); !ok {
		return
	}
	client, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	vouchers, err := h.voucherStore.ListByClient(client.TeamID, client.ID)
	if err != nil {
		h.logger.Error("list vouchers", "error", err, "client_id", client.ID)
		writeError(w, http.StatusInternalServerError, "failed to list vouchers")
		return
	}
	if vouchers == nil {
		vouchers = []model.Voucher{}
	}
	writeJSON(w, http.StatusOK, vouchers)
}
