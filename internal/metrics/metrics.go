// Package metrics exposes Prometheus collectors for the conversation loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Utterances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karen_utterances_total",
			Help: "Finalized utterances by outcome (command, conversation, queued, dropped)",
		},
		[]string{"outcome"},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karen_commands_total",
			Help: "Local control phrases handled",
		},
		[]string{"command"},
	)

	Replies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karen_replies_total",
			Help: "Assistant replies by resolved emotion",
		},
		[]string{"emotion"},
	)

	GenerationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karen_generation_failures_total",
			Help: "Generation requests that ended in the fallback message",
		},
	)

	GenerationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "karen_generation_latency_seconds",
			Help:    "Generation round-trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "karen_connected_clients",
			Help: "Realtime websocket clients attached to the session",
		},
	)
)
