package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carepay/internal/auth"
	"carepay/internal/requestctx"
)

func TestAuthMiddlewareSetsPrincipal(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{Role: auth.RoleEmployer, EmployerID: "emp-1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	called := false
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		principal, ok := GetPrincipal(r.Context())
		if !ok {
			t.Fatal("expected principal in context")
		}
		if principal.Role != auth.RoleEmployer || principal.EmployerID != "emp-1" {
			t.Fatalf("unexpected principal: %+v", principal)
		}
		if requestctx.GetEmployerID(r.Context()) != "emp-1" {
			t.Fatal("expected employer id in request context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("handler not called")
	}
}

func TestAuthMiddlewareIgnoresBadTokens(t *testing.T) {
	handler := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetPrincipal(r.Context()); ok {
			t.Fatal("did not expect principal in context")
		}
	}))

	for _, header := range []string{"", "Basic abc", "Bearer not-a-token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func TestRequirePermission(t *testing.T) {
	guarded := RequirePermission(auth.PermPaymentsStatus)(http.HandlerFunc(noContent))

	cases := []struct {
		name string
		role string
		want int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"employer", auth.RoleEmployer, http.StatusForbidden},
		{"gateway", auth.RoleGateway, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/p1/status", nil)
			if tc.role != "" {
				req = req.WithContext(WithPrincipal(req.Context(), auth.Principal{Role: tc.role}))
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestCanAccessEmployer(t *testing.T) {
	if !CanAccessEmployer(auth.Principal{Role: auth.RoleGateway}, "emp-1") {
		t.Fatal("unscoped principal should access any employer")
	}
	if CanAccessEmployer(auth.Principal{Role: auth.RoleEmployer, EmployerID: "emp-2"}, "emp-1") {
		t.Fatal("scoped principal must not access another employer")
	}
}
