package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "volatile_connections_active",
			Help: "Currently open relay connections",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volatile_connections_total",
			Help: "Total relay connections accepted",
		},
	)

	// Frame metrics
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volatile_frames_received_total",
			Help: "Client frames received",
		},
		[]string{"type"},
	)

	ErrorFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volatile_error_frames_total",
			Help: "Error frames sent to clients",
		},
		[]string{"reason"}, // "malformed", "unregistered", "validation", "store"
	)

	// Message lifecycle metrics. Counts only, never content or identities.
	MessagesQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volatile_messages_queued_total",
			Help: "Messages appended to recipient queues",
		},
	)

	MessagesPushedLive = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volatile_messages_pushed_live_total",
			Help: "Messages pushed to a currently connected recipient",
		},
	)

	MessagesSeen = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "volatile_messages_seen_total",
			Help: "Messages deleted after a seen acknowledgement",
		},
	)

	PendingFlushed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volatile_pending_flush_size",
			Help:    "Queue size flushed on register",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)
)
