package context

import (
	"context"
	"strings"
)

// Keys handlers set on the gin context so the request log and the server span
// can name the payment a request touched.
const (
	KeyTransactionID  = "transaction_id"
	KeyWebhookEventID = "webhook_event_id"
	KeyIdempotencyKey = "idempotency_key"
	KeyReplayed       = "idempotent_replay"
)

type contextKey string

const (
	requestIDKey contextKey = "obs_request_id"
	eventIDKey   contextKey = "obs_event_id"
)

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithEventID stores the processor event currently being reconciled.
func WithEventID(ctx context.Context, eventID string) context.Context {
	eventID = strings.TrimSpace(eventID)
	if ctx == nil || eventID == "" {
		return ctx
	}
	return context.WithValue(ctx, eventIDKey, eventID)
}

func EventIDFromContext(ctx context.Context) string {
	return stringValue(ctx, eventIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
