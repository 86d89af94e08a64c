package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instruments for invoicing flows.
type Metrics struct {
	transitions      *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	factoring        *prometheus.CounterVec
	overdueMarked    prometheus.Counter
	notifications    *prometheus.CounterVec
	sequenceFallback prometheus.Counter
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers and returns the metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightpay_invoice_transitions_total",
			Help: "Invoice status transitions by source and target status.",
		}, []string{"from", "to"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightpay_webhook_events_total",
			Help: "Provider webhook deliveries by provider, event type and outcome.",
		}, []string{"provider", "event_type", "outcome"}),
		factoring: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightpay_factoring_submissions_total",
			Help: "Factoring submissions by provider and outcome.",
		}, []string{"provider", "outcome"}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightpay_invoices_marked_overdue_total",
			Help: "Invoices moved to OVERDUE by the sweep.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightpay_notifications_total",
			Help: "Notification deliveries by kind and outcome.",
		}, []string{"kind", "outcome"}),
		sequenceFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "freightpay_sequence_fallback_total",
			Help: "Invoice numbers allocated with the random fallback suffix.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightpay_scheduler_job_runs_total",
			Help: "Scheduler job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "freightpay_scheduler_job_duration_seconds",
			Help:    "Scheduler job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightpay_rate_limited_total",
			Help: "Requests rejected by a rate limiter.",
		}, []string{"scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freightpay_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "freightpay_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.transitions,
			m.webhookEvents,
			m.factoring,
			m.overdueMarked,
			m.notifications,
			m.sequenceFallback,
			m.jobRuns,
			m.jobDuration,
			m.rateLimited,
			m.httpRequests,
			m.httpDuration,
		)
	}
	return m
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordWebhookEvent(provider, eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, eventType, outcome).Inc()
}

func (m *Metrics) RecordFactoring(provider, outcome string) {
	if m == nil {
		return
	}
	m.factoring.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordOverdue(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.overdueMarked.Add(float64(count))
}

func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordSequenceFallback() {
	if m == nil {
		return
	}
	m.sequenceFallback.Inc()
}

// RecordJobRun counts one scheduler run. outcome is ok, error, timeout or skipped.
func (m *Metrics) RecordJobRun(job, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome != "skipped" {
		m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
	}
}

func (m *Metrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

// GinMiddleware records request counts and latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
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
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
