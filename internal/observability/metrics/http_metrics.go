package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics captures request health for the scrape endpoint.
type HTTPMetrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	webhookLookups *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	gatherer       prometheus.Gatherer
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *HTTPMetrics
)

// NewHTTPMetrics returns the process-wide HTTP metrics registered on the
// default Prometheus registry.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = newHTTPMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, cfg)
	})
	return httpMetrics
}

func newHTTPMetrics(registerer prometheus.Registerer, gatherer prometheus.Gatherer, cfg Config) *HTTPMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "paydesk"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "paydesk_http_requests_total",
		Help:        "HTTP requests by route and status class.",
		ConstLabels: constLabels,
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "paydesk_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		ConstLabels: constLabels,
	}, []string{"method", "route"})
	// Attempts needed before a webhook found its local transaction.
	webhookLookups := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "paydesk_webhook_lookup_attempts",
		Help:        "Lookup attempts per webhook event before the transaction was found or given up.",
		Buckets:     []float64{1, 2, 3, 4, 6, 8},
		ConstLabels: constLabels,
	}, []string{"found"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "paydesk_side_effect_queue_depth",
		Help:        "Side effects waiting for a worker.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(requests, duration, webhookLookups, queueDepth)

	return &HTTPMetrics{
		requests:       requests,
		duration:       duration,
		webhookLookups: webhookLookups,
		queueDepth:     queueDepth,
		gatherer:       gatherer,
	}
}

// GinMiddleware records every request after the handler chain ran.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := strings.ToUpper(c.Request.Method)
		m.requests.WithLabelValues(method, route, statusClass(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus exposition format.
func (m *HTTPMetrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *HTTPMetrics) ObserveWebhookLookup(attempts int, found bool) {
	if m == nil {
		return
	}
	m.webhookLookups.WithLabelValues(strconv.FormatBool(found)).Observe(float64(attempts))
}

func (m *HTTPMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
