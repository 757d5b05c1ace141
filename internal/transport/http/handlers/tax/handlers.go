package taxhandler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"carepay/internal/auth"
	"carepay/internal/domain/tax"
	"carepay/internal/transport/http/api"
	"carepay/internal/transport/http/middleware"
	"carepay/internal/transport/http/shared"
)

type Handler struct {
	Store *tax.Store
}

func NewHandler(store *tax.Store) *Handler {
	return &Handler{Store: store}
}

type yearPayload struct {
	SocialSecurityEmployeeRate decimal.Decimal `json:"socialSecurityEmployeeRate"`
	SocialSecurityEmployerRate decimal.Decimal `json:"socialSecurityEmployerRate"`
	SocialSecurityWageBase     decimal.Decimal `json:"socialSecurityWageBase"`
	MedicareEmployeeRate       decimal.Decimal `json:"medicareEmployeeRate"`
	MedicareEmployerRate       decimal.Decimal `json:"medicareEmployerRate"`
	MedicareWageBase           decimal.Decimal `json:"medicareWageBase"`
	FUTARate                   decimal.Decimal `json:"futaRate"`
	FUTAWageBase               decimal.Decimal `json:"futaWageBase"`
	StateCode                  string          `json:"stateCode"`
	SUIRate                    decimal.Decimal `json:"suiRate"`
	SUIWageBase                decimal.Decimal `json:"suiWageBase"`
	StatePaidLeaveRate         decimal.Decimal `json:"statePaidLeaveRate"`
	StatePaidLeaveWageBase     decimal.Decimal `json:"statePaidLeaveWageBase"`
	FederalWithholdingRate     decimal.Decimal `json:"federalWithholdingRate"`
	StateWithholdingRate       decimal.Decimal `json:"stateWithholdingRate"`
	StandardDeductionSingle    decimal.Decimal `json:"standardDeductionSingle"`
	StandardDeductionMarried   decimal.Decimal `json:"standardDeductionMarried"`
	MinimumWage                decimal.Decimal `json:"minimumWage"`
	EffectiveDate              string          `json:"effectiveDate"`
	Version                    string          `json:"version"`
	IsDefault                  bool            `json:"isDefault"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tax/years", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermTaxRead)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermTaxRead)).Get("/{year}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermTaxWrite)).Put("/{year}", h.handleUpsert)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	configs, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, r, err, "tax_list_failed")
		return
	}
	if configs == nil {
		configs = []tax.Configuration{}
	}
	api.Success(w, configs, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	year, ok := parseYear(w, r)
	if !ok {
		return
	}
	cfg, err := h.Store.EffectiveConfig(r.Context(), year)
	if err != nil {
		writeError(w, r, err, "tax_get_failed")
		return
	}
	api.Success(w, cfg, reqID)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	year, ok := parseYear(w, r)
	if !ok {
		return
	}
	var payload yearPayload
	if err := api.Decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("version", payload.Version, "is required")
	effective, _ := v.Date("effectiveDate", payload.EffectiveDate)
	if v.Reject(w, reqID) {
		return
	}

	stored, err := h.Store.UpsertYear(r.Context(), tax.Configuration{
		TaxYear:                    year,
		SocialSecurityEmployeeRate: payload.SocialSecurityEmployeeRate,
		SocialSecurityEmployerRate: payload.SocialSecurityEmployerRate,
		SocialSecurityWageBase:     payload.SocialSecurityWageBase,
		MedicareEmployeeRate:       payload.MedicareEmployeeRate,
		MedicareEmployerRate:       payload.MedicareEmployerRate,
		MedicareWageBase:           payload.MedicareWageBase,
		FUTARate:                   payload.FUTARate,
		FUTAWageBase:               payload.FUTAWageBase,
		StateCode:                  payload.StateCode,
		SUIRate:                    payload.SUIRate,
		SUIWageBase:                payload.SUIWageBase,
		StatePaidLeaveRate:         payload.StatePaidLeaveRate,
		StatePaidLeaveWageBase:     payload.StatePaidLeaveWageBase,
		FederalWithholdingRate:     payload.FederalWithholdingRate,
		StateWithholdingRate:       payload.StateWithholdingRate,
		StandardDeductionSingle:    payload.StandardDeductionSingle,
		StandardDeductionMarried:   payload.StandardDeductionMarried,
		MinimumWage:                payload.MinimumWage,
		EffectiveDate:              effective,
		Version:                    payload.Version,
		IsDefault:                  payload.IsDefault,
	})
	if err != nil {
		writeError(w, r, err, "tax_upsert_failed")
		return
	}
	api.Success(w, stored, reqID)
}

func parseYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := shared.NewValidator()
	year, _ := v.Year("year", chi.URLParam(r, "year"))
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return 0, false
	}
	return year, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, tax.ErrNoConfiguration):
		api.Fail(w, http.StatusNotFound, "no_tax_configuration", err.Error(), reqID)
	case errors.Is(err, tax.ErrInvalidConfiguration):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
	default:
		slog.Error("tax request failed", "code", fallbackCode, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", reqID)
	}
}
