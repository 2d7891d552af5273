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

type RemittanceHandler struct {
	svc     *service.RemittanceService
	history *service.HistoryReader
}

func NewRemittanceHandler(svc *service.RemittanceService, history *service.HistoryReader) *RemittanceHandler {
	return &RemittanceHandler{svc: svc, history: history}
}

type createRemittanceRequest struct {
	OwnerID     string  `json:"owner_id" validate:"required,uuid"`
	Currency    string  `json:"currency" validate:"required,uppercase,min=3,max=10"`
	Amount      string  `json:"amount" validate:"required"`
	Kind        string  `json:"kind" validate:"required,oneof=transfer cash"`
	Receiver    *string `json:"receiver,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	EvidenceRef *string `json:"evidence_ref,omitempty"`
}

func (h *RemittanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req createRemittanceRequest
	if !DecodeValid(w, r, &req) {
		return
	}
	ownerID, _ := parseUUID(req.OwnerID)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "operation/invalid-amount", "amount must be a decimal string")
		return
	}

	rem, err := h.svc.Create(r.Context(), service.CreateRemittanceInput{
		OwnerID:     ownerID,
		ActorID:     actorID,
		Currency:    req.Currency,
		Amount:      amount,
		Kind:        req.Kind,
		Receiver:    req.Receiver,
		Notes:       req.Notes,
		EvidenceRef: req.EvidenceRef,
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rem)
}

func (h *RemittanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid remittance id")
		return
	}
	rem, err := h.svc.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rem)
}

func (h *RemittanceHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

func (h *RemittanceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *RemittanceHandler) CancelByTime(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CancelByTime)
}

func (h *RemittanceHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID uuid.UUID) error) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid remittance id")
		return
	}
	if err := fn(r.Context(), id, actorID); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type editRemittanceRequest struct {
	Currency    string  `json:"currency" validate:"required,uppercase,min=3,max=10"`
	Amount      string  `json:"amount" validate:"required"`
	Kind        string  `json:"kind" validate:"required,oneof=transfer cash"`
	Receiver    *string `json:"receiver,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	EvidenceRef *string `json:"evidence_ref,omitempty"`
	NewOwnerID  *string `json:"new_owner_id,omitempty" validate:"omitempty,uuid"`
}

func (h *RemittanceHandler) Edit(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid remittance id")
		return
	}

	var req editRemittanceRequest
	if !DecodeValid(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "operation/invalid-amount", "amount must be a decimal string")
		return
	}

	in := service.EditRemittanceInput{
		ID:          id,
		ActorID:     actorID,
		Amount:      amount,
		Currency:    req.Currency,
		Kind:        req.Kind,
		Receiver:    req.Receiver,
		Notes:       req.Notes,
		EvidenceRef: req.EvidenceRef,
	}
	if req.NewOwnerID != nil {
		ownerID, _ := parseUUID(*req.NewOwnerID)
		in.NewOwnerID = &ownerID
	}

	rem, err := h.svc.Edit(r.Context(), in)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rem)
}

func (h *RemittanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid remittance id")
		return
	}

	change, err := h.svc.Delete(r.Context(), id, actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"balance_change": change.String()})
}

func (h *RemittanceHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid remittance id")
		return
	}

	rem, err := h.svc.Reactivate(r.Context(), id, actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rem)
}

func (h *RemittanceHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid remittance id")
		return
	}
	entries, err := h.history.List(r.Context(), domain.OpTypeRemittance, id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}
