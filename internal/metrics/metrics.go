// Package metrics holds the Prometheus collectors of the bot. They register
// with the default registry on import and are served by the router on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clientbot"

// UpdatesTotal counts inbound updates by kind (message, callback_query, other).
var UpdatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Total number of Telegram updates handled, by kind.",
	},
	[]string{"kind"},
)

// TransitionsTotal counts session state changes.
// Labels:
//   - from, to: state names (e.g. "awaiting_phone")
var TransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Total number of conversation state transitions.",
	},
	[]string{"from", "to"},
)

// RelayEventsTotal counts change-feed notifications by result
// (processed, parse_error, no_user, panic).
var RelayEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_events_total",
		Help:      "Total number of change-feed notifications, by result.",
	},
	[]string{"result"},
)

// RelayDeliveriesTotal counts per-field deliveries.
// Labels:
//   - field: watched column name
//   - result: sent, failed or duplicate
var RelayDeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_deliveries_total",
		Help:      "Total number of relay deliveries, by field and result.",
	},
	[]string{"field", "result"},
)

// DispatchQueueDepth tracks pending updates per dispatcher worker.
var DispatchQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Current number of updates pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// UpdateDuration measures handling time of one update.
var UpdateDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "update_duration_seconds",
		Help:      "Duration of update handling from dequeue to completion.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// SupervisorRestartsTotal counts failed runs of supervised tasks.
var SupervisorRestartsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "supervisor_restarts_total",
		Help:      "Total number of supervised task failures followed by a restart.",
	},
	[]string{"task"},
)
