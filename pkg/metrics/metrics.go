package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reverse queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marksync_queue_depth",
			Help: "Current number of items in the reverse queue",
		},
	)

	EventsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marksync_events_enqueued_total",
			Help: "Total number of reverse events enqueued",
		},
	)

	EventsSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marksync_events_superseded_total",
			Help: "Total number of queue items swept after being coalesced away",
		},
	)

	EventsQuarantined = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marksync_events_quarantined_total",
			Help: "Total number of queue items dropped after repeated transport failures",
		},
	)

	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksync_flushes_total",
			Help: "Total number of reverse flush rounds by result",
		},
		[]string{"result"},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marksync_flush_duration_seconds",
			Help:    "Reverse flush round duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ack metrics
	AcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksync_acks_total",
			Help: "Total number of ack results processed by status",
		},
		[]string{"status"},
	)

	// Capture metrics
	CapturesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marksync_captures_suppressed_total",
			Help: "Total number of local changes skipped by the echo gate",
		},
	)

	// Inbound apply metrics
	InboundActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksync_inbound_actions_total",
			Help: "Total number of inbound actions applied by outcome",
		},
		[]string{"status"},
	)

	InboundDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marksync_inbound_duplicates_total",
			Help: "Total number of inbound actions dropped by the dedupe ledger",
		},
	)

	// Session metrics
	WSReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marksync_ws_reconnects_total",
			Help: "Total number of WebSocket disconnects that scheduled a reconnect",
		},
	)

	WSSessionUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marksync_ws_session_up",
			Help: "Whether the WebSocket session is connected (1) or not (0)",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(EventsEnqueued)
	prometheus.MustRegister(EventsSuperseded)
	prometheus.MustRegister(EventsQuarantined)
	prometheus.MustRegister(FlushesTotal)
	prometheus.MustRegister(FlushDuration)
	prometheus.MustRegister(AcksTotal)
	prometheus.MustRegister(CapturesSuppressed)
	prometheus.MustRegister(InboundActionsTotal)
	prometheus.MustRegister(InboundDuplicates)
	prometheus.MustRegister(WSReconnects)
	prometheus.MustRegister(WSSessionUp)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for a histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on the given histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}
