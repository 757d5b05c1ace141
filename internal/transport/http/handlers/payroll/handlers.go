package payrollhandler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"carepay/internal/auth"
	"carepay/internal/domain/household"
	"carepay/internal/domain/payroll"
	"carepay/internal/domain/tax"
	"carepay/internal/transport/http/api"
	"carepay/internal/transport/http/middleware"
	"carepay/internal/transport/http/shared"
)

type Handler struct {
	Payroll    *payroll.Service
	Households *household.Store
}

func NewHandler(service *payroll.Service, households *household.Store) *Handler {
	return &Handler{Payroll: service, Households: households}
}

type runPayload struct {
	CaregiverID string `json:"caregiverId"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

type voidPayload struct {
	Reason string `json:"reason"`
}

type timeEntryPayload struct {
	WorkDate string `json:"workDate"`
	Hours    string `json:"hours"`
	Notes    string `json:"notes"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRun)).Post("/run", h.handleRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/records/{recordID}", h.handleGetRecord)
		r.With(middleware.RequirePermission(auth.PermPayrollApprove)).Post("/records/{recordID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermPayrollApprove)).Post("/records/{recordID}/void", h.handleVoid)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/caregivers/{caregiverID}/ytd", h.handleYTD)
		r.With(middleware.RequirePermission(auth.PermPayrollRead)).Get("/caregivers/{caregiverID}/time-entries", h.handleListTimeEntries)
		r.With(middleware.RequirePermission(auth.PermTimeWrite)).Post("/caregivers/{caregiverID}/time-entries", h.handleAddTimeEntry)
	})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload runPayload
	if err := api.Decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("caregiverId", payload.CaregiverID, "is required")
	start, _ := v.Date("periodStart", payload.PeriodStart)
	end, _ := v.Date("periodEnd", payload.PeriodEnd)
	v.DateOrder("periodStart", start, "periodEnd", end)
	if v.Reject(w, reqID) {
		return
	}

	if !h.authorizeCaregiver(w, r, payload.CaregiverID) {
		return
	}

	rec, err := h.Payroll.RunPayroll(r.Context(), payload.CaregiverID, start, end)
	if err != nil {
		writeError(w, r, err, "payroll_run_failed")
		return
	}
	api.Created(w, rec, reqID)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	v := shared.NewValidator()
	page := v.Page(r, shared.RecordPages)
	filter := payroll.RecordFilter{
		EmployerID:    principal.EmployerID,
		CaregiverID:   r.URL.Query().Get("caregiverId"),
		IncludeVoided: r.URL.Query().Get("includeVoided") == "true",
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		filter.Year, _ = v.Year("year", raw)
	}
	if v.Reject(w, reqID) {
		return
	}

	records, err := h.Payroll.ListRecords(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "payroll_list_failed")
		return
	}
	if records == nil {
		records = []payroll.Record{}
	}
	api.Success(w, records, reqID)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}
	approved, err := h.Payroll.ApproveRecord(r.Context(), rec.ID)
	if err != nil {
		writeError(w, r, err, "payroll_approve_failed")
		return
	}
	api.Success(w, approved, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload voidPayload
	if err := api.Decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("reason", payload.Reason, "is required")
	if v.Reject(w, reqID) {
		return
	}

	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}
	voided, err := h.Payroll.VoidRecord(r.Context(), rec.ID, payload.Reason)
	if err != nil {
		writeError(w, r, err, "payroll_void_failed")
		return
	}
	api.Success(w, voided, reqID)
}

func (h *Handler) handleYTD(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	caregiverID := chi.URLParam(r, "caregiverID")

	v := shared.NewValidator()
	year, _ := v.Year("year", r.URL.Query().Get("year"))
	before := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, _ = v.Date("before", raw)
	}
	if v.Reject(w, reqID) {
		return
	}
	if !h.authorizeCaregiver(w, r, caregiverID) {
		return
	}

	agg, err := h.Payroll.YTDAggregates(r.Context(), caregiverID, year, before)
	if err != nil {
		writeError(w, r, err, "payroll_ytd_failed")
		return
	}
	api.Success(w, agg, reqID)
}

func (h *Handler) handleAddTimeEntry(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	caregiverID := chi.URLParam(r, "caregiverID")

	var payload timeEntryPayload
	if err := api.Decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	v := shared.NewValidator()
	workDate, _ := v.Date("workDate", payload.WorkDate)
	hours, _ := v.Decimal("hours", payload.Hours)
	if v.Reject(w, reqID) {
		return
	}
	if !h.authorizeCaregiver(w, r, caregiverID) {
		return
	}

	entry, err := h.Payroll.AddTimeEntry(r.Context(), caregiverID, workDate, hours, payload.Notes)
	if err != nil {
		writeError(w, r, err, "time_entry_failed")
		return
	}
	api.Created(w, entry, reqID)
}

func (h *Handler) handleListTimeEntries(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	caregiverID := chi.URLParam(r, "caregiverID")

	v := shared.NewValidator()
	start, _ := v.Date("start", r.URL.Query().Get("start"))
	end, _ := v.Date("end", r.URL.Query().Get("end"))
	v.DateOrder("start", start, "end", end)
	if v.Reject(w, reqID) {
		return
	}
	if !h.authorizeCaregiver(w, r, caregiverID) {
		return
	}

	entries, err := h.Payroll.ListTimeEntries(r.Context(), caregiverID, start, end)
	if err != nil {
		writeError(w, r, err, "time_entry_list_failed")
		return
	}
	if entries == nil {
		entries = []payroll.TimeEntry{}
	}
	api.Success(w, entries, reqID)
}

// loadRecord fetches the path record. Records of other households answer 404.
func (h *Handler) loadRecord(w http.ResponseWriter, r *http.Request) (payroll.Record, bool) {
	principal, _ := middleware.GetPrincipal(r.Context())
	rec, err := h.Payroll.GetRecord(r.Context(), chi.URLParam(r, "recordID"))
	if err == nil && !middleware.CanAccessEmployer(principal, rec.EmployerID) {
		err = payroll.ErrRecordNotFound
	}
	if err != nil {
		writeError(w, r, err, "payroll_record_failed")
		return payroll.Record{}, false
	}
	return rec, true
}

func (h *Handler) authorizeCaregiver(w http.ResponseWriter, r *http.Request, caregiverID string) bool {
	principal, _ := middleware.GetPrincipal(r.Context())
	if principal.EmployerID == "" {
		return true
	}
	caregiver, err := h.Households.GetCaregiver(r.Context(), caregiverID)
	if err == nil && !middleware.CanAccessEmployer(principal, caregiver.EmployerID) {
		err = household.ErrCaregiverNotFound
	}
	if err != nil {
		writeError(w, r, err, "caregiver_lookup_failed")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	reqID := middleware.GetRequestID(r.Context())
	var insufficient *payroll.InsufficientDataError
	var noConfig *tax.NoConfigurationError
	switch {
	case errors.As(err, &insufficient):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "insufficient_data", err.Error(), map[string]string{
			"caregiverId": insufficient.CaregiverID,
			"periodStart": insufficient.Start.Format("2006-01-02"),
			"periodEnd":   insufficient.End.Format("2006-01-02"),
		}, reqID)
	case errors.As(err, &noConfig):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "no_tax_configuration", err.Error(), map[string]int{"year": noConfig.Year}, reqID)
	case errors.Is(err, household.ErrCaregiverNotFound),
		errors.Is(err, household.ErrEmployerNotFound),
		errors.Is(err, payroll.ErrRecordNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, payroll.ErrCaregiverInactive):
		api.Fail(w, http.StatusUnprocessableEntity, "caregiver_inactive", err.Error(), reqID)
	case errors.Is(err, payroll.ErrInvalidPeriod),
		errors.Is(err, payroll.ErrInvalidTimeEntry):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
	case errors.Is(err, payroll.ErrRecordExists),
		errors.Is(err, payroll.ErrPeriodClosed),
		errors.Is(err, payroll.ErrRecordVoided),
		errors.Is(err, payroll.ErrInvalidState),
		errors.Is(err, payroll.ErrEntriesChanged),
		errors.Is(err, payroll.ErrPaymentsOutstanding):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), reqID)
	default:
		slog.Error("payroll request failed", "code", fallbackCode, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", reqID)
	}
}
