package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the telemetry bridge
type Metrics struct {
	// Forwarding metrics
	PacketsSent     prometheus.Counter
	SendErrors      prometheus.Counter
	EncodeErrors    prometheus.Counter
	Ticks           prometheus.Counter
	TickDuration    prometheus.Histogram
	ForwarderActive prometheus.Gauge

	// Per-tick entity metrics
	PlayersSeen     prometheus.Counter
	PlayersSent     prometheus.Counter
	AntennasSent    prometheus.Counter
	AntennasDropped prometheus.Counter
	ItemFailures    *prometheus.CounterVec

	// Ingest metrics
	SnapshotsIngested prometheus.Counter
	IngestErrors      prometheus.Counter
	IngestConnected   prometheus.Gauge

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates all bridge metrics and registers them with reg.
// Tests pass a private registry; the binary passes the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_packets_sent_total",
			Help: "Total number of UDP control frames sent to the mixing server",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_send_errors_total",
			Help: "Total number of UDP send failures",
		}),
		EncodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_encode_errors_total",
			Help: "Total number of frame encoding failures",
		}),
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_forward_ticks_total",
			Help: "Total number of forwarding ticks executed",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "radio_forward_tick_duration_seconds",
			Help:    "Duration of forwarding ticks",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100µs to ~1.6s
		}),
		ForwarderActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radio_forwarder_active",
			Help: "1 while the forwarding loop is running, 0 otherwise",
		}),

		PlayersSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_players_seen_total",
			Help: "Total number of players observed across ticks",
		}),
		PlayersSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_players_sent_total",
			Help: "Total number of player position messages sent",
		}),
		AntennasSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_antennas_sent_total",
			Help: "Total number of antennas included in sent snapshots",
		}),
		AntennasDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_antennas_dropped_total",
			Help: "Total number of antennas dropped to fit the frame body limit",
		}),
		ItemFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radio_item_failures_total",
			Help: "Total number of non-fatal per-item failures in the tick path",
		}, []string{"stage"}),

		SnapshotsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_snapshots_ingested_total",
			Help: "Total number of world snapshots received from the simulation",
		}),
		IngestErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "radio_ingest_errors_total",
			Help: "Total number of malformed ingest messages",
		}),
		IngestConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radio_ingest_connected",
			Help: "1 while a simulation is connected to the ingest socket",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
	}
}

// RecordPacketSent increments the packets sent counter.
func (m *Metrics) RecordPacketSent() {
	m.PacketsSent.Inc()
}

// RecordItemFailure increments the per-item failure counter for a stage.
func (m *Metrics) RecordItemFailure(stage string) {
	m.ItemFailures.WithLabelValues(stage).Inc()
}

// SetForwarderActive flips the running gauge.
func (m *Metrics) SetForwarderActive(active bool) {
	if active {
		m.ForwarderActive.Set(1)
	} else {
		m.ForwarderActive.Set(0)
	}
}

// SetIngestConnected flips the ingest connection gauge.
func (m *Metrics) SetIngestConnected(connected bool) {
	if connected {
		m.IngestConnected.Set(1)
	} else {
		m.IngestConnected.Set(0)
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
}
