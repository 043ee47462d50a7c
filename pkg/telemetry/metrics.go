package telemetry

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the Prometheus side of the HTTP surface, scraped at /metrics.
type Metrics struct {
	apiRequests       *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	webhookDeliveries *prometheus.CounterVec
	webhookDuration   *prometheus.HistogramVec
}

// NewMetrics registers and returns Prometheus metrics for the HTTP layer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_api_requests_total",
		Help: "Counts API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credits_api_duration_seconds",
		Help:    "API request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	webhookDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_webhook_delivery_total",
		Help: "Inbound payment webhook deliveries by provider and status.",
	}, []string{"provider", "status"})

	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credits_webhook_delivery_duration_seconds",
		Help:    "Inbound payment webhook handling latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	for _, c := range []prometheus.Collector{apiRequests, apiDuration, webhookDeliveries, webhookDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &Metrics{
		apiRequests:       apiRequests,
		apiDuration:       apiDuration,
		webhookDeliveries: webhookDeliveries,
		webhookDuration:   webhookDuration,
	}, nil
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordWebhookDelivery records an inbound webhook delivery.
func (m *Metrics) RecordWebhookDelivery(provider string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	providerLabel := sanitizeLabel(provider)
	m.webhookDeliveries.WithLabelValues(providerLabel, strconv.Itoa(status)).Inc()
	m.webhookDuration.WithLabelValues(providerLabel).Observe(duration.Seconds())
}

// GinMiddleware observes every request. Webhook routes are also counted per provider.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		status := c.Writer.Status()
		m.ObserveAPIRequest(c.Request.Method, route, status, elapsed)
		if provider := c.Param("provider"); provider != "" && strings.HasPrefix(route, "/webhooks/") && status != http.StatusNotFound {
			m.RecordWebhookDelivery(provider, status, elapsed)
		}
	}
}

func sanitizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return strings.ToLower(value)
}
