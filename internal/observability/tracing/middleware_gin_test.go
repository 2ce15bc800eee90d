package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paydesk/internal/observability/context"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func newRouter(cfg MiddlewareConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(cfg))
	return r
}

func TestGinMiddlewareNamesSpanByPaymentRoute(t *testing.T) {
	recorder := recordSpans(t)
	r := newRouter(MiddlewareConfig{})
	r.POST("/api/transactions/pay", func(c *gin.Context) {
		c.Set(obscontext.KeyIdempotencyKey, "order-77")
		c.Set(obscontext.KeyTransactionID, "7301")
		c.Set(obscontext.KeyReplayed, true)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/pay", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "POST /api/transactions/pay", spans[0].Name())
	attrs := spanAttrs(spans[0])
	require.Equal(t, "7301", attrs["paydesk.transaction_id"].AsString())
	require.True(t, attrs["paydesk.idempotency_key"].AsBool())
	require.True(t, attrs["paydesk.replayed"].AsBool())
	require.Equal(t, int64(http.StatusOK), attrs["http.response.status_code"].AsInt64())
	for _, kv := range spans[0].Attributes() {
		require.NotEqual(t, "order-77", kv.Value.Emit())
	}
}

func TestGinMiddlewareTagsResourceIDs(t *testing.T) {
	recorder := recordSpans(t)
	r := newRouter(MiddlewareConfig{})
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/api/transactions/:id/receipts", ok)
	r.GET("/api/payment-links/:id", ok)
	r.POST("/webhooks/stripe", func(c *gin.Context) {
		c.Set(obscontext.KeyWebhookEventID, "evt_9")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/transactions/55/receipts", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/payment-links/66", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "GET /api/transactions/:id/receipts", spans[0].Name())
	require.Equal(t, "55", spanAttrs(spans[0])["paydesk.transaction_id"].AsString())
	require.Equal(t, "66", spanAttrs(spans[1])["paydesk.payment_link_id"].AsString())
	require.Equal(t, "evt_9", spanAttrs(spans[2])["paydesk.webhook_event_id"].AsString())
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	recorder := recordSpans(t)
	r := newRouter(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "api_error", "gateway_unavailable" },
	})
	r.POST("/api/transactions/:id/refund", func(c *gin.Context) {
		_ = c.Error(errors.New("processor unavailable"))
		c.Status(http.StatusServiceUnavailable)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/transactions/9/refund", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	attrs := spanAttrs(spans[0])
	require.Equal(t, "api_error", attrs["error.type"].AsString())
	require.Equal(t, "gateway_unavailable", attrs["paydesk.error_code"].AsString())
	require.Len(t, spans[0].Events(), 1)
}

func TestGinMiddlewareSkipsHealthAndMetrics(t *testing.T) {
	recorder := recordSpans(t)
	r := newRouter(MiddlewareConfig{})
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/health/live", ok)
	r.GET("/metrics", ok)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Empty(t, recorder.Ended())
}
