package middleware

import (
	"net/http"

	"carepay/internal/auth"
	"carepay/internal/transport/http/api"
)

func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
				return
			}
			if !auth.HasPermission(principal.Role, permission) {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CanAccessEmployer reports whether the caller may act on a household's data.
// Gateway tokens and unscoped employer tokens see every household.
func CanAccessEmployer(principal auth.Principal, employerID string) bool {
	return principal.EmployerID == "" || principal.EmployerID == employerID
}
