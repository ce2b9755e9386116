// Package metrics provides Prometheus instrumentation for the thread helper
// services. It counts triggers, removals, locks and notifications, tracks
// trigger handling latency, and gauges open gateway connections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TriggersTotal counts handled trigger events, labeled by trigger type
	// and outcome: "removed", "locked", "passed", "skipped", "invalid" or
	// "error".
	TriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadhelper_triggers_total",
		Help: "Total number of trigger events handled",
	}, []string{"type", "outcome"})

	// RemovalsTotal counts removals issued, labeled by reason code. Posts and
	// outside-thread comments use "outside-post" and "outside-comment".
	RemovalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadhelper_removals_total",
		Help: "Total number of posts and comments removed",
	}, []string{"reason"})

	// LocksTotal counts locks issued, labeled by kind: "comment", "post" or
	// "notice".
	LocksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadhelper_locks_total",
		Help: "Total number of posts and comments locked",
	}, []string{"kind"})

	// NotificationsTotal counts private messages, labeled by result: "sent",
	// "failed", "not_whitelisted" or "suppressed".
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadhelper_notifications_total",
		Help: "Total number of removal notifications attempted",
	}, []string{"result"})

	// TriggerLatency records trigger handling latency in seconds.
	TriggerLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threadhelper_trigger_latency_seconds",
		Help:    "Trigger handling latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// GatewayConnections tracks the current number of runtime connections to
	// the trigger gateway.
	GatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threadhelper_gateway_connections",
		Help: "Current number of open trigger gateway connections",
	})
)

func init() {
	prometheus.MustRegister(
		TriggersTotal,
		RemovalsTotal,
		LocksTotal,
		NotificationsTotal,
		TriggerLatency,
		GatewayConnections,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
