package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe on a nil receiver so services can run without them.
type Metrics struct {
	Requests       *prometheus.CounterVec
	LatencyMS      *prometheus.HistogramVec
	OrdersCreated  *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	GatewayCalls   *prometheus.CounterVec
	AmountMismatch prometheus.Counter
	Webhooks       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bindery",
			Subsystem: "orders",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bindery",
			Subsystem: "orders",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bindery",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created, by initial status.",
		}, []string{"status"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bindery",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bindery",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Payment gateway calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
		AmountMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bindery",
			Subsystem: "gateway",
			Name:      "amount_mismatch_total",
			Help:      "Verified payments whose amount differed from the computed total.",
		}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bindery",
			Subsystem: "gateway",
			Name:      "webhooks_total",
			Help:      "Payment webhooks, by outcome.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.OrdersCreated, m.Transitions, m.GatewayCalls, m.AmountMismatch, m.Webhooks)
	return m
}

func (m *Metrics) OrderCreated(status string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) GatewayCall(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.GatewayCalls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Mismatch() {
	if m == nil {
		return
	}
	m.AmountMismatch.Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(outcome).Inc()
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
