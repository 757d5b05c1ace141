package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"carepay/internal/auth"
	"carepay/internal/requestctx"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Auth attaches the bearer token's principal when one verifies. Requests
// without a valid token continue anonymously and are rejected by
// RequirePermission on protected routes.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				slog.Debug("bearer token rejected", "err", err, "requestId", GetRequestID(r.Context()))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Principal())))
		})
	}
}

// WithPrincipal also tags the context with the principal's employer so audit
// entries carry it.
func WithPrincipal(ctx context.Context, principal auth.Principal) context.Context {
	ctx = context.WithValue(ctx, ctxKeyPrincipal, principal)
	if principal.EmployerID != "" {
		ctx = requestctx.WithEmployerID(ctx, principal.EmployerID)
	}
	return ctx
}

func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	principal, ok := ctx.Value(ctxKeyPrincipal).(auth.Principal)
	return principal, ok
}
