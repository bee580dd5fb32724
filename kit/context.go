package kit

import "context"

type contextKey string

const (
	TransportKey    contextKey = "kit_transport" // "http", "mcp", "cli"
	RequestIDKey    contextKey = "kit_request_id"
	ActivationIDKey contextKey = "kit_activation_id"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

// GetTransport defaults to "http".
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// WithActivationID tags a context with the feed activation it belongs to.
func WithActivationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ActivationIDKey, id)
}
func GetActivationID(ctx context.Context) string {
	v, _ := ctx.Value(ActivationIDKey).(string)
	return v
}
