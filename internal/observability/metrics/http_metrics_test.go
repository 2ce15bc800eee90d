package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, registry, Config{ServiceName: "paydesk", Environment: "test"})

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/api/transactions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/transactions/42", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/transactions/:id", "4xx"))
	require.Equal(t, float64(2), got)
}

func TestObserveWebhookLookup(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, registry, Config{})

	m.ObserveWebhookLookup(3, true)

	observer, err := m.webhookLookups.GetMetricWithLabelValues("true")
	require.NoError(t, err)
	var out dto.Metric
	require.NoError(t, observer.(prometheus.Metric).Write(&out))
	require.Equal(t, uint64(1), out.GetHistogram().GetSampleCount())
	require.Equal(t, float64(3), out.GetHistogram().GetSampleSum())
}

func TestQueueDepthGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, registry, Config{})

	m.SetQueueDepth(7)

	require.Equal(t, float64(7), testutil.ToFloat64(m.queueDepth))
}

func TestStatusClass(t *testing.T) {
	require.Equal(t, "2xx", statusClass(201))
	require.Equal(t, "5xx", statusClass(503))
	require.Equal(t, "unknown", statusClass(0))
}
