package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Registry bundles the service's Prometheus collectors behind one
// registration point so tests can build isolated instances.
type Registry struct {
	registry *prometheus.Registry

	QuotesServed      *prometheus.CounterVec
	TransfersStarted  prometheus.Counter
	TransfersSettled  *prometheus.CounterVec
	WebhooksReceived  *prometheus.CounterVec
	IdempotentReplays prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	m := &Registry{
		registry: r,
		QuotesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routeflow_quotes_served_total",
			Help: "Route quotes served, by selected chain.",
		}, []string{"chain"}),
		TransfersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeflow_transfers_started_total",
			Help: "Provider transfers initiated.",
		}),
		TransfersSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routeflow_transfers_settled_total",
			Help: "Provider transfers reaching a terminal state, by outcome.",
		}, []string{"status"}),
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routeflow_webhooks_received_total",
			Help: "Inbound provider webhooks, by verification outcome.",
		}, []string{"outcome"}),
		IdempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeflow_idempotent_replays_total",
			Help: "Requests answered from a stored idempotency record.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routeflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	r.MustRegister(
		m.QuotesServed,
		m.TransfersStarted,
		m.TransfersSettled,
		m.WebhooksReceived,
		m.IdempotentReplays,
		m.HTTPDuration,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Registry) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
