package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/remesaops/remesas-backend/internal/service"
)

type BalanceHandler struct {
	svc *service.BalanceService
}

func NewBalanceHandler(svc *service.BalanceService) *BalanceHandler {
	return &BalanceHandler{svc: svc}
}

// Get returns a user's USD balance. Optional from/to RFC 3339 query
// parameters restrict the computation to a period.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUID(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid user id")
		return
	}

	fromRaw, toRaw := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if fromRaw == "" && toRaw == "" {
		b, err := h.svc.GetBalance(r.Context(), userID)
		if err != nil {
			RespondServiceError(w, r, err)
			return
		}
		RespondJSON(w, http.StatusOK, b)
		return
	}

	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-period", "from must be RFC 3339")
		return
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-period", "to must be RFC 3339")
		return
	}
	if to.Before(from) {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-period", "to precedes from")
		return
	}

	b, err := h.svc.GetBalanceForPeriod(r.Context(), userID, from, to)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, b)
}

// Recalculate rebuilds every user's stored balance. Administrators only; the
// router guards the role.
func (h *BalanceHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	corrected, err := h.svc.RecalculateAll(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int{"corrected": corrected})
}
