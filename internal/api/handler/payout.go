package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/service"
)

type PayoutHandler struct {
	svc     *service.PayoutService
	history *service.HistoryReader
}

func NewPayoutHandler(svc *service.PayoutService, history *service.HistoryReader) *PayoutHandler {
	return &PayoutHandler{svc: svc, history: history}
}

type createPayoutRequest struct {
	OwnerID      string  `json:"owner_id" validate:"required,uuid"`
	Currency     string  `json:"currency" validate:"required,uppercase,min=3,max=10"`
	Amount       string  `json:"amount" validate:"required"`
	Kind         string  `json:"kind" validate:"required,oneof=transfer cash"`
	Recipient    *string `json:"recipient,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Address      *string `json:"address,omitempty"`
	IDDocument   *string `json:"id_document,omitempty"`
	Card         *string `json:"card,omitempty"`
	RemittanceID *string `json:"remittance_id,omitempty" validate:"omitempty,uuid"`
}

func (h *PayoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req createPayoutRequest
	if !DecodeValid(w, r, &req) {
		return
	}
	ownerID, _ := parseUUID(req.OwnerID)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "operation/invalid-amount", "amount must be a decimal string")
		return
	}

	in := service.CreatePayoutInput{
		OwnerID:    ownerID,
		ActorID:    actorID,
		Currency:   req.Currency,
		Amount:     amount,
		Kind:       req.Kind,
		Recipient:  req.Recipient,
		Phone:      req.Phone,
		Address:    req.Address,
		IDDocument: req.IDDocument,
		Card:       req.Card,
	}
	if req.RemittanceID != nil {
		remID, _ := parseUUID(*req.RemittanceID)
		in.RemittanceID = &remID
	}

	p, err := h.svc.Create(r.Context(), in)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, p)
}

func (h *PayoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

func (h *PayoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

func (h *PayoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *PayoutHandler) CancelByTime(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CancelByTime)
}

func (h *PayoutHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID uuid.UUID) error) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}
	if err := fn(r.Context(), id, actorID); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type editPayoutRequest struct {
	Currency   string  `json:"currency" validate:"required,uppercase,min=3,max=10"`
	Amount     string  `json:"amount" validate:"required"`
	Kind       string  `json:"kind" validate:"required,oneof=transfer cash"`
	Recipient  *string `json:"recipient,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Address    *string `json:"address,omitempty"`
	IDDocument *string `json:"id_document,omitempty"`
	Card       *string `json:"card,omitempty"`
	NewOwnerID *string `json:"new_owner_id,omitempty" validate:"omitempty,uuid"`
}

func (h *PayoutHandler) Edit(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}

	var req editPayoutRequest
	if !DecodeValid(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "operation/invalid-amount", "amount must be a decimal string")
		return
	}

	in := service.EditPayoutInput{
		ID:         id,
		ActorID:    actorID,
		Amount:     amount,
		Currency:   req.Currency,
		Kind:       req.Kind,
		Recipient:  req.Recipient,
		Phone:      req.Phone,
		Address:    req.Address,
		IDDocument: req.IDDocument,
		Card:       req.Card,
	}
	if req.NewOwnerID != nil {
		ownerID, _ := parseUUID(*req.NewOwnerID)
		in.NewOwnerID = &ownerID
	}

	p, err := h.svc.Edit(r.Context(), in)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

func (h *PayoutHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}

	change, err := h.svc.Delete(r.Context(), id, actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"balance_change": change.String()})
}

func (h *PayoutHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}

	p, err := h.svc.Reactivate(r.Context(), id, actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, p)
}

func (h *PayoutHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid payout id")
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	opType := domain.OpTypePayout
	if p.Linked() {
		opType = domain.OpTypeLinkedPayout
	}
	entries, err := h.history.List(r.Context(), opType, id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}
