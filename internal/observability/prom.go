package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	// remote service calls, by logical op
	RemoteCallDuration *prometheus.HistogramVec
	RemoteErrorsTotal  *prometheus.CounterVec

	// client state
	SessionTransitions *prometheus.CounterVec
	StaleUpdatesTotal  *prometheus.CounterVec
	SubmissionsTotal   *prometheus.CounterVec
	DeletionsTotal     *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "surveyhub",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "surveyhub",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "surveyhub",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		RemoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "surveyhub",
				Subsystem: "remote",
				Name:      "call_duration_seconds",
				Help:      "Hosted service call latency (logical op, not raw request)",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5, 10},
			},
			[]string{"op", "status"},
		),
		RemoteErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "surveyhub",
				Subsystem: "remote",
				Name:      "errors_total",
				Help:      "Hosted service errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "surveyhub",
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Session state transitions by resulting state.",
			},
			[]string{"state"},
		),
		StaleUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "surveyhub",
				Subsystem: "session",
				Name:      "stale_updates_total",
				Help:      "Async results discarded because a newer auth decision or teardown superseded them.",
			},
			[]string{"task"},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "surveyhub",
				Subsystem: "survey",
				Name:      "submissions_total",
				Help:      "Survey submit attempts by result.",
			},
			[]string{"result"}, // result=ok|invalid|error
		),
		DeletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "surveyhub",
				Subsystem: "moderation",
				Name:      "deletions_total",
				Help:      "Response deletions by result.",
			},
			[]string{"result"}, // result=ok|error
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.RemoteCallDuration, p.RemoteErrorsTotal,
		p.SessionTransitions, p.StaleUpdatesTotal,
		p.SubmissionsTotal, p.DeletionsTotal,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
