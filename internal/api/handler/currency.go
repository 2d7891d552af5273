package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/service"
)

type CurrencyHandler struct {
	store service.QueryStore
}

func NewCurrencyHandler(store service.QueryStore) *CurrencyHandler {
	return &CurrencyHandler{store: store}
}

func (h *CurrencyHandler) List(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.store.Queries().ListCurrencies(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, currencies)
}

func (h *CurrencyHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	cur, err := h.store.Queries().GetCurrency(r.Context(), code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			RespondError(w, r, http.StatusNotFound, "resource/not-found", "currency not found")
			return
		}
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cur)
}

type upsertCurrencyRequest struct {
	Code                string `json:"code" validate:"required,uppercase,min=3,max=10"`
	Name                string `json:"name" validate:"required"`
	RateCurrent         string `json:"rate_current" validate:"required"`
	RateCommercial      string `json:"rate_commercial" validate:"required"`
	Kind                string `json:"kind" validate:"required,oneof=transfer cash"`
	Enabled             bool   `json:"enabled"`
	FloorBalance        string `json:"floor_balance" validate:"required"`
	FloorAlertThreshold string `json:"floor_alert_threshold" validate:"required"`
}

func (h *CurrencyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertCurrencyRequest
	if !DecodeValid(w, r, &req) {
		return
	}

	fields := map[string]string{
		"rate_current":          req.RateCurrent,
		"rate_commercial":       req.RateCommercial,
		"floor_balance":         req.FloorBalance,
		"floor_alert_threshold": req.FloorAlertThreshold,
	}
	parsed := map[string]decimal.Decimal{}
	for name, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/validation", name+" must be a decimal string")
			return
		}
		parsed[name] = d
	}
	if !parsed["rate_current"].IsPositive() || !parsed["rate_commercial"].IsPositive() {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "rates must be positive")
		return
	}

	cur := models.Currency{
		Code:                req.Code,
		Name:                req.Name,
		RateCurrent:         parsed["rate_current"],
		RateCommercial:      parsed["rate_commercial"],
		Kind:                req.Kind,
		Enabled:             req.Enabled,
		FloorBalance:        parsed["floor_balance"],
		FloorAlertThreshold: parsed["floor_alert_threshold"],
	}
	if err := h.store.Queries().UpsertCurrency(r.Context(), cur); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cur)
}

type updateRatesRequest struct {
	RateCurrent    string `json:"rate_current" validate:"required"`
	RateCommercial string `json:"rate_commercial" validate:"required"`
}

// UpdateRates changes the registry rates. Existing operations keep their
// pinned snapshots; only new and edited operations see the new rates.
func (h *CurrencyHandler) UpdateRates(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req updateRatesRequest
	if !DecodeValid(w, r, &req) {
		return
	}

	current, err := decimal.NewFromString(req.RateCurrent)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "rate_current must be a decimal string")
		return
	}
	commercial, err := decimal.NewFromString(req.RateCommercial)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "rate_commercial must be a decimal string")
		return
	}
	if !current.IsPositive() || !commercial.IsPositive() {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "rates must be positive")
		return
	}

	rows, err := h.store.Queries().UpdateCurrencyRates(r.Context(), code, current, commercial)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if rows == 0 {
		RespondError(w, r, http.StatusNotFound, "resource/not-found", "currency not found")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CurrencyHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.store.Queries().ListVariants(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, variants)
}

type upsertVariantRequest struct {
	Name      string `json:"name" validate:"required"`
	Position  int    `json:"position"`
	Enabled   bool   `json:"enabled"`
	IsDefault bool   `json:"is_default"`
}

func (h *CurrencyHandler) UpsertVariant(w http.ResponseWriter, r *http.Request) {
	var req upsertVariantRequest
	if !DecodeValid(w, r, &req) {
		return
	}
	v := models.ValuationVariant{
		Name:      req.Name,
		Position:  req.Position,
		Enabled:   req.Enabled,
		IsDefault: req.IsDefault,
	}
	if err := h.store.Queries().UpsertVariant(r.Context(), v); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, v)
}
