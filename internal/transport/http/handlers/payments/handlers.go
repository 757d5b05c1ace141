package paymentshandler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carepay/internal/auth"
	"carepay/internal/domain/ledger"
	"carepay/internal/domain/payroll"
	"carepay/internal/transport/http/api"
	"carepay/internal/transport/http/middleware"
	"carepay/internal/transport/http/shared"
)

type Handler struct {
	Ledger  *ledger.Store
	Payroll *payroll.Service
}

func NewHandler(store *ledger.Store, payrollService *payroll.Service) *Handler {
	return &Handler{Ledger: store, Payroll: payrollService}
}

type createPayload struct {
	EmployerID         string `json:"employerId"`
	CaregiverID        string `json:"caregiverId"`
	PayrollRecordID    string `json:"payrollRecordId"`
	AmountCents        int64  `json:"amountCents"`
	Currency           string `json:"currency"`
	SourceAccount      string `json:"sourceAccount"`
	DestinationAccount string `json:"destinationAccount"`
}

type statusPayload struct {
	Status            string `json:"status"`
	ExternalReference string `json:"externalReference"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPaymentsCreate), middleware.RequireIdempotencyKey).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermPaymentsRead)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermPaymentsRead)).Get("/{paymentID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermPaymentsStatus)).Post("/{paymentID}/status", h.handleUpdateStatus)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	var payload createPayload
	if err := api.Decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	v := shared.NewValidator()
	v.Cents("amountCents", payload.AmountCents)
	if v.Reject(w, reqID) {
		return
	}

	req := ledger.CreateRequest{
		IdempotencyKey:     middleware.GetIdempotencyKey(r.Context()),
		EmployerID:         payload.EmployerID,
		CaregiverID:        payload.CaregiverID,
		PayrollRecordID:    payload.PayrollRecordID,
		AmountCents:        payload.AmountCents,
		Currency:           payload.Currency,
		SourceAccount:      payload.SourceAccount,
		DestinationAccount: payload.DestinationAccount,
	}
	if principal.EmployerID != "" {
		if req.EmployerID != "" && req.EmployerID != principal.EmployerID {
			api.Fail(w, http.StatusForbidden, "forbidden", "token is scoped to another employer", reqID)
			return
		}
		req.EmployerID = principal.EmployerID
	}

	prior, found, err := h.Ledger.Replay(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "payment_create_failed")
		return
	}
	if found {
		w.Header().Set("Idempotent-Replayed", "true")
		api.Success(w, prior, reqID)
		return
	}

	if req.PayrollRecordID != "" {
		if !h.bindRecord(w, r, &req) {
			return
		}
	}

	v.Required("employerId", req.EmployerID, "is required")
	if req.AmountCents <= 0 {
		v.Add("amountCents", "must be a positive number of cents")
	}
	if v.Reject(w, reqID) {
		return
	}

	txn, created, err := h.Ledger.CreateTransaction(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "payment_create_failed")
		return
	}
	if created {
		api.Created(w, txn, reqID)
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	api.Success(w, txn, reqID)
}

// bindRecord ties a payment to an approved payroll record. Caregiver, amount
// and tax version default from the record; an explicit amount must match
// its net pay.
func (h *Handler) bindRecord(w http.ResponseWriter, r *http.Request, req *ledger.CreateRequest) bool {
	reqID := middleware.GetRequestID(r.Context())
	rec, err := h.Payroll.GetRecord(r.Context(), req.PayrollRecordID)
	if err == nil && req.EmployerID != "" && rec.EmployerID != req.EmployerID {
		err = payroll.ErrRecordNotFound
	}
	if errors.Is(err, payroll.ErrRecordNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
		return false
	}
	if err != nil {
		writeError(w, r, err, "payment_create_failed")
		return false
	}
	if rec.IsVoided {
		api.Fail(w, http.StatusConflict, "record_voided", "payroll record is voided", reqID)
		return false
	}
	if rec.Status != payroll.StatusApproved {
		api.Fail(w, http.StatusConflict, "record_not_approved", "payroll record must be approved before payment", reqID)
		return false
	}

	req.EmployerID = rec.EmployerID
	if req.CaregiverID == "" {
		req.CaregiverID = rec.CaregiverID
	}
	if req.AmountCents == 0 {
		req.AmountCents = rec.NetPayCents()
	}
	if req.AmountCents != rec.NetPayCents() || req.CaregiverID != rec.CaregiverID {
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "amountCents", Reason: "must match the record's net pay and caregiver"}})
		return false
	}
	req.TaxLogicVersion = rec.TaxVersion
	return true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())
	v := shared.NewValidator()
	page := v.Page(r, shared.PaymentPages)
	if v.Reject(w, reqID) {
		return
	}

	var (
		txns []ledger.Transaction
		err  error
	)
	if recordID := r.URL.Query().Get("payrollRecordId"); recordID != "" {
		txns, err = h.Ledger.ListByPayrollRecord(r.Context(), recordID)
		if err == nil && principal.EmployerID != "" {
			txns = scoped(txns, principal)
		}
	} else {
		employerID := principal.EmployerID
		if employerID == "" {
			employerID = r.URL.Query().Get("employerId")
		}
		if employerID == "" {
			shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "employerId", Reason: "is required"}})
			return
		}
		txns, err = h.Ledger.ListByEmployer(r.Context(), employerID, page.Limit, page.Offset)
	}
	if err != nil {
		writeError(w, r, err, "payment_list_failed")
		return
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	api.Success(w, txns, reqID)
}

func scoped(txns []ledger.Transaction, principal auth.Principal) []ledger.Transaction {
	out := txns[:0]
	for _, t := range txns {
		if middleware.CanAccessEmployer(principal, t.EmployerID) {
			out = append(out, t)
		}
	}
	return out
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	txn, err := h.Ledger.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err == nil && !middleware.CanAccessEmployer(principal, txn.EmployerID) {
		err = ledger.ErrNotFound
	}
	if err != nil {
		writeError(w, r, err, "payment_get_failed")
		return
	}
	api.Success(w, txn, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload statusPayload
	if err := api.Decode(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("status", payload.Status, "is required")
	v.Enum("status", payload.Status, []string{ledger.StatusPaid, ledger.StatusFailed, ledger.StatusReversed}, "must be paid, failed or reversed")
	if v.Reject(w, reqID) {
		return
	}

	txn, err := h.Ledger.UpdateStatus(r.Context(), chi.URLParam(r, "paymentID"), payload.Status, payload.ExternalReference)
	if err != nil {
		writeError(w, r, err, "payment_status_failed")
		return
	}
	api.Success(w, txn, reqID)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	reqID := middleware.GetRequestID(r.Context())
	var transition *ledger.InvalidTransitionError
	switch {
	case errors.As(err, &transition):
		api.FailWithDetails(w, http.StatusConflict, "invalid_transition", err.Error(), map[string]string{
			"from": transition.From,
			"to":   transition.To,
		}, reqID)
	case errors.Is(err, ledger.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, ledger.ErrIdempotencyConflict):
		api.Fail(w, http.StatusUnprocessableEntity, "idempotency_conflict", err.Error(), reqID)
	case errors.Is(err, ledger.ErrInvalidRequest):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
	default:
		slog.Error("payment request failed", "code", fallbackCode, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", reqID)
	}
}
