package goConsole

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a correlation id to ctx. The Store logs it with
// every transition it causes and the api package forwards it as
// X-Request-ID. Login and Start generate one when ctx carries none.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id attached by [WithRequestID], or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
