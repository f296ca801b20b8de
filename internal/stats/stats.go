// Package stats registers the emulator's Prometheus metrics: named
// counters and histograms declared once at package load and scraped over
// HTTP from a single-process registry.
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestDuration observes stage-1-through-8 wall time per HTTP method
	// and outcome (ok|error), recorded by the pipeline wrapper.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cloudemu",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request latency through the pipeline.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	// ObjectOps counts object-store operations by kind and outcome.
	ObjectOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudemu",
		Subsystem: "objectstore",
		Name:      "ops_total",
		Help:      "Object store operations by op and outcome.",
	}, []string{"op", "outcome"})

	// LifecycleActions counts lifecycle-rule actions taken per tick.
	LifecycleActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudemu",
		Subsystem: "lifecycle",
		Name:      "actions_total",
		Help:      "Lifecycle actions applied, by action.",
	}, []string{"action"})

	// ContainerCallDuration observes container-driver round trips; the
	// per-call timeout of spec's compute orchestrator bounds the tail.
	ContainerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cloudemu",
		Subsystem: "container",
		Name:      "call_duration_seconds",
		Help:      "Container runtime call latency by call name.",
		Buckets:   []float64{.005, .025, .1, .25, 1, 2.5, 10, 30},
	}, []string{"call"})

	// RateLimited counts requests rejected by the fixed-window limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudemu",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with ResourceExhausted.",
	})

	// EventsDelivered counts webhook delivery outcomes.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudemu",
		Subsystem: "events",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})
)

// Handler exposes the scrape endpoint mounted by the router.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveContainerCall is a small helper so the driver can time a call
// with one defer.
func ObserveContainerCall(call string, start time.Time) {
	ContainerCallDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
}
