package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paydesk/internal/observability/context"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareConfig controls server span enrichment.
type MiddlewareConfig struct {
	// ErrorClassifier maps a handler error to its API error type and code.
	ErrorClassifier func(err error) (string, string)
}

// resourceParams names the path parameter of each resource route, keyed by
// the route prefix that owns it.
var resourceParams = []struct {
	prefix string
	attr   attribute.Key
}{
	{"/api/transactions/:id", "paydesk.transaction_id"},
	{"/api/payment-links/:id", "paydesk.payment_link_id"},
	{"/api/receipts/:id", "paydesk.receipt_id"},
}

// GinMiddleware opens one server span per API or webhook request. Spans are
// named after the matched route, so every payment on /api/transactions/:id
// shares a span name and the id travels as an attribute instead.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tracer := Tracer("http")
	return func(c *gin.Context) {
		if isHousekeeping(c.Request.URL.Path) {
			c.Next()
			return
		}

		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span.SetName(method + " " + route)

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		}
		attrs = append(attrs, paymentAttributes(c, route)...)
		span.SetAttributes(SafeAttributes(attrs...)...)

		lastErr := c.Errors.Last()
		if lastErr != nil && cfg.ErrorClassifier != nil {
			errType, errCode := cfg.ErrorClassifier(lastErr.Err)
			span.SetAttributes(
				attribute.String("error.type", errType),
				attribute.String("paydesk.error_code", errCode),
			)
		}
		if status >= http.StatusInternalServerError {
			if lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func paymentAttributes(c *gin.Context, route string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, rp := range resourceParams {
		if route == rp.prefix || strings.HasPrefix(route, rp.prefix+"/") {
			attrs = append(attrs, attribute.String(string(rp.attr), c.Param("id")))
			break
		}
	}
	if txID := c.GetString(obscontext.KeyTransactionID); txID != "" {
		attrs = append(attrs, attribute.String("paydesk.transaction_id", txID))
	}
	if eventID := c.GetString(obscontext.KeyWebhookEventID); eventID != "" {
		attrs = append(attrs, attribute.String("paydesk.webhook_event_id", eventID))
	}
	// The key is client chosen; only its presence is exported.
	if c.GetString(obscontext.KeyIdempotencyKey) != "" || c.GetHeader("Idempotency-Key") != "" {
		attrs = append(attrs,
			attribute.Bool("paydesk.idempotency_key", true),
			attribute.Bool("paydesk.replayed", c.GetBool(obscontext.KeyReplayed)),
		)
	}
	return attrs
}

func isHousekeeping(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}
