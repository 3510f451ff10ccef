// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts access decisions by result: granted, denied, error.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymgate_access_decisions_total",
		Help: "Access decisions by result.",
	}, []string{"result"})

	// ValidationSeconds observes full decision-pipeline latency.
	ValidationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gymgate_validation_seconds",
		Help:    "Access decision pipeline latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 3},
	})

	// DeviceMessages counts inbound companion-process messages by kind.
	DeviceMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymgate_device_messages_total",
		Help: "Inbound device companion messages by kind.",
	}, []string{"kind"})

	// LinkState is 1 when the WebSocket transport is connected.
	LinkState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gymgate_device_link_state",
		Help: "Transport state of the device link (1 = connected).",
	})

	// DeviceConnected is 1 when the companion process reports a live
	// session to the physical reader.
	DeviceConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gymgate_device_connected",
		Help: "Physical device session state (1 = connected).",
	})
)

// DecisionResult returns the label value for a decision outcome.
func DecisionResult(granted, systemError bool) string {
	switch {
	case systemError:
		return "error"
	case granted:
		return "granted"
	default:
		return "denied"
	}
}
