package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/notify"
	"github.com/remesaops/remesas-backend/internal/service"
)

type NotificationHandler struct {
	store  service.QueryStore
	fanout *notify.Fanout
}

func NewNotificationHandler(store service.QueryStore, fanout *notify.Fanout) *NotificationHandler {
	return &NotificationHandler{store: store, fanout: fanout}
}

// Inbox lists the authenticated user's internal notifications.
func (h *NotificationHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, offset := pagination(r)
	items, err := h.store.Queries().ListInternalNotifications(r.Context(), actorID, unreadOnly, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, items)
}

// MarkRead marks one of the authenticated user's notifications as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid notification id")
		return
	}

	rows, err := h.store.Queries().MarkNotificationRead(r.Context(), id, actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if rows == 0 {
		RespondError(w, r, http.StatusNotFound, "resource/not-found", "notification not found")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ExternalLog lists outbound delivery attempts, optionally by status.
func (h *NotificationHandler) ExternalLog(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, offset := pagination(r)
	items, err := h.store.Queries().ListExternalLogs(r.Context(), status, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, items)
}

// Resend retries a failed or stuck outbound delivery.
func (h *NotificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid log id")
		return
	}
	if err := h.fanout.Resend(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			RespondError(w, r, http.StatusNotFound, "resource/not-found", "delivery log not found")
			return
		}
		RespondError(w, r, http.StatusBadGateway, "notifications/delivery-failed", err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *NotificationHandler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := h.store.Queries().ListActiveRecipients(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, recipients)
}

type upsertRecipientRequest struct {
	ID           *string  `json:"id,omitempty" validate:"omitempty,uuid"`
	Name         string   `json:"name" validate:"required"`
	Phone        string   `json:"phone" validate:"required,e164"`
	Active       bool     `json:"active"`
	CallMeBotKey *string  `json:"callmebot_key,omitempty"`
	Currencies   []string `json:"currencies"`
	Events       []string `json:"events" validate:"dive,oneof=remittance_new remittance_edited remittance_confirmed remittance_completed remittance_cancelled remittance_deleted payout_new payout_edited payout_confirmed payout_cancelled payout_deleted remittance_pending_30h payout_pending_30h linked_payout_pending_30h currency_low_floor"`
}

func (h *NotificationHandler) UpsertRecipient(w http.ResponseWriter, r *http.Request) {
	var req upsertRecipientRequest
	if !DecodeValid(w, r, &req) {
		return
	}

	rcpt := models.NotificationRecipient{
		ID:           uuid.New(),
		Name:         req.Name,
		Phone:        req.Phone,
		Active:       req.Active,
		CallMeBotKey: req.CallMeBotKey,
		Currencies:   req.Currencies,
		Events:       req.Events,
	}
	if req.ID != nil {
		id, _ := parseUUID(*req.ID)
		rcpt.ID = id
	}

	if err := h.store.Queries().UpsertRecipient(r.Context(), rcpt); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rcpt)
}

func (h *NotificationHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Queries().GetCarrierConfig(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}

func (h *NotificationHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var cfg models.CarrierConfig
	if !DecodeValid(w, r, &cfg) {
		return
	}
	if err := h.store.Queries().SaveCarrierConfig(r.Context(), cfg); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cfg)
}

// EventTags lists the tags recipients can subscribe to.
func (h *NotificationHandler) EventTags(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, domain.EventTags)
}

func pagination(r *http.Request) (limit, offset int32) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = int32(n)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
