// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package metrics exposes Prometheus collectors for the identity and session
// services and the /metrics scrape handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface consumed by services and workers.
type Recorder interface {
	RecordReconciliation(providerKind, action string)
	RecordSessionEvent(event string)
	RecordSweep(kind string, deleted int64)
	RecordSweepFailure()
	RecordMail(template, outcome string)
}

// Session lifecycle events.
const (
	SessionCreated   = "created"
	SessionRotated   = "rotated"
	SessionLoggedOut = "logged_out"
	SessionPurged    = "purged"
	SessionRejected  = "rejected"
)

// Mail outcomes.
const (
	MailSent   = "sent"
	MailQueued = "queued"
	MailFailed = "failed"
)

// Collector is the Prometheus-backed [Recorder].
type Collector struct {
	reconciliations *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
	sweptSessions   *prometheus.CounterVec
	sweepFailures   prometheus.Counter
	mails           *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgate_reconciliation_decisions_total",
			Help: "Identity reconciliation outcomes by provider kind and action.",
		}, []string{"provider_kind", "action"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgate_session_events_total",
			Help: "Session lifecycle events.",
		}, []string{"event"}),
		sweptSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgate_session_sweep_deleted_total",
			Help: "Sessions deleted by the background sweep.",
		}, []string{"kind"}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idgate_session_sweep_failures_total",
			Help: "Sweep ticks that ended in an error.",
		}),
		mails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgate_mail_total",
			Help: "Outbound mail by template and outcome.",
		}, []string{"template", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.reconciliations,
		c.sessionEvents,
		c.sweptSessions,
		c.sweepFailures,
		c.mails,
		c.httpDuration,
	)

	return c
}

// RecordReconciliation counts one engine decision.
func (c *Collector) RecordReconciliation(providerKind, action string) {
	c.reconciliations.WithLabelValues(providerKind, action).Inc()
}

// RecordSessionEvent counts one session lifecycle event.
func (c *Collector) RecordSessionEvent(event string) {
	c.sessionEvents.WithLabelValues(event).Inc()
}

// RecordSweep adds the rows removed by one sweep pass.
func (c *Collector) RecordSweep(kind string, deleted int64) {
	c.sweptSessions.WithLabelValues(kind).Add(float64(deleted))
}

// RecordSweepFailure counts a failed sweep tick.
func (c *Collector) RecordSweepFailure() {
	c.sweepFailures.Inc()
}

// RecordMail counts one mail dispatch outcome.
func (c *Collector) RecordMail(template, outcome string) {
	c.mails.WithLabelValues(template, outcome).Inc()
}

// # HTTP

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (writer *statusWriter) WriteHeader(code int) {
	writer.status = code
	writer.ResponseWriter.WriteHeader(code)
}

// Instrument observes request latency labelled by the chi route pattern, which
// keeps label cardinality bounded.
func (c *Collector) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		startTime := time.Now()
		wrapped := &statusWriter{ResponseWriter: writer, status: http.StatusOK}

		next.ServeHTTP(wrapped, request)

		route := "unmatched"
		if routeContext := chi.RouteContext(request.Context()); routeContext != nil {
			if pattern := routeContext.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		c.httpDuration.
			WithLabelValues(request.Method, route, strconv.Itoa(wrapped.status)).
			Observe(time.Since(startTime).Seconds())
	})
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// # No-op

// Nop discards every observation. Used by commands that do not serve /metrics.
type Nop struct{}

func (Nop) RecordReconciliation(string, string) {}
func (Nop) RecordSessionEvent(string)           {}
func (Nop) RecordSweep(string, int64)           {}
func (Nop) RecordSweepFailure()                 {}
func (Nop) RecordMail(string, string)           {}
