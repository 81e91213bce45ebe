// Package metrics holds the prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "checkin",
		Name:      "sessions_created_total",
		Help:      "Check-in sessions started.",
	})

	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkin",
		Name:      "sessions_ended_total",
		Help:      "Check-in sessions ended, by reason.",
	}, []string{"reason"})

	Checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkin",
		Name:      "checkins_total",
		Help:      "Accepted student check-ins, by resulting status.",
	}, []string{"status"})

	CheckinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkin",
		Name:      "checkin_rejections_total",
		Help:      "Check-in attempts that changed nothing, by reason.",
	}, []string{"reason"})

	ArmedTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "checkin",
		Name:      "expiry_timers",
		Help:      "Session expiry timers currently armed in this process.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "checkin",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	QueueEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkin",
		Name:      "queue_events_total",
		Help:      "Queue events handled by the worker, by type and outcome.",
	}, []string{"type", "outcome"})
)
