package audithandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carepay/internal/auth"
	"carepay/internal/domain/audit"
	"carepay/internal/transport/http/api"
	"carepay/internal/transport/http/middleware"
	"carepay/internal/transport/http/shared"
)

type Handler struct {
	Service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/audit", h.handleList)
}

// handleList pages through audit entries. Employer tokens only see entries
// written on behalf of their own household.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	v := shared.NewValidator()
	page := v.Page(r, shared.AuditPages)
	if v.Reject(w, reqID) {
		return
	}
	filter := audit.Filter{
		EmployerID: principal.EmployerID,
		TableName:  r.URL.Query().Get("tableName"),
		RecordID:   r.URL.Query().Get("recordId"),
		Action:     r.URL.Query().Get("action"),
	}
	total, err := h.Service.Count(r.Context(), filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	}

	entries, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit entries", reqID)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	shared.SetTotal(w, total)
	api.Success(w, entries, reqID)
}
