package middleware

import (
	"context"
	"net/http"
	"strings"

	"carepay/internal/transport/http/api"
)

const (
	IdempotencyHeader       = "Idempotency-Key"
	maxIdempotencyKeyLength = 255
)

const ctxKeyIdempotency ctxKey = "idempotency_key"

// RequireIdempotencyKey rejects mutations that arrive without a usable
// Idempotency-Key header. Replay resolution itself happens in the ledger.
func RequireIdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" {
			api.Fail(w, http.StatusBadRequest, "idempotency_key_required", "Idempotency-Key header is required", GetRequestID(r.Context()))
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			api.Fail(w, http.StatusBadRequest, "idempotency_key_invalid", "Idempotency-Key header is too long", GetRequestID(r.Context()))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyIdempotency, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetIdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(ctxKeyIdempotency).(string)
	return key
}
