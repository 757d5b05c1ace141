package requestctx

import "context"

type ctxKey string

const (
	requestIDKey  ctxKey = "request_id"
	employerIDKey ctxKey = "employer_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

// WithEmployerID tags the context with the household the caller acts for.
func WithEmployerID(ctx context.Context, employerID string) context.Context {
	return context.WithValue(ctx, employerIDKey, employerID)
}

func GetEmployerID(ctx context.Context) string {
	if value, ok := ctx.Value(employerIDKey).(string); ok {
		return value
	}
	return ""
}
