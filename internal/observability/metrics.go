// Package observability holds the Prometheus instrumentation for the
// ingestion pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so components can run
// uninstrumented. Topic names are deliberately not used as label values:
// the monitored topic space is unbounded and would blow up series
// cardinality.
type Metrics struct {
	// Connection metrics
	ConnectionUp      prometheus.Gauge
	ConnectAttempts   prometheus.Counter
	ReconnectAttempts prometheus.Counter
	PublishFailures   prometheus.Counter

	// Ingestion metrics
	MessagesReceived prometheus.Counter
	MessagesBuffered prometheus.Counter
	QueueDepth       prometheus.Gauge

	// Batch metrics
	BatchesEmitted prometheus.Counter
	BatchSize      prometheus.Histogram

	// Buffer metrics
	BufferEvictions prometheus.Counter
	BufferedBytes   prometheus.Gauge
	BufferedTopics  prometheus.Gauge
	SettingsUpdates prometheus.Counter
}

// NewMetrics creates and registers all metrics against the given registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Connection metrics
		ConnectionUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mqttscope_connection_up",
			Help: "1 while a broker session is established, 0 otherwise",
		}),
		ConnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_connect_attempts_total",
			Help: "Total number of explicit connection attempts",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_reconnect_attempts_total",
			Help: "Total number of automatic reconnection attempts",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_publish_failures_total",
			Help: "Total number of outbound publishes the broker did not accept",
		}),

		// Ingestion metrics
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_messages_received_total",
			Help: "Total number of messages received from the broker",
		}),
		MessagesBuffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_messages_buffered_total",
			Help: "Total number of messages appended to topic buffers",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mqttscope_ingest_queue_depth",
			Help: "Messages waiting in the arrival queue for the next drain",
		}),

		// Batch metrics
		BatchesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_batches_emitted_total",
			Help: "Total number of batch notifications delivered to the observer",
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mqttscope_batch_size_messages",
			Help:    "Messages per drained batch",
			Buckets: []float64{1, 5, 10, 25, 50, 75},
		}),

		// Buffer metrics
		BufferEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_buffer_evictions_total",
			Help: "Total number of messages evicted to respect buffer budgets",
		}),
		BufferedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mqttscope_buffered_bytes",
			Help: "Payload bytes currently held across all topic buffers",
		}),
		BufferedTopics: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mqttscope_buffered_topics",
			Help: "Topics currently holding at least one buffered message",
		}),
		SettingsUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqttscope_settings_updates_total",
			Help: "Total number of applied settings updates",
		}),
	}
}

// SetConnected records the connection gauge.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.ConnectionUp.Set(1)
		return
	}
	m.ConnectionUp.Set(0)
}

// IncConnectAttempts increments the explicit connection attempt counter.
func (m *Metrics) IncConnectAttempts() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}

// IncReconnectAttempts increments the automatic reconnection counter.
func (m *Metrics) IncReconnectAttempts() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// IncPublishFailures increments the failed publish counter.
func (m *Metrics) IncPublishFailures() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// IncMessagesReceived increments the received message counter.
func (m *Metrics) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

// AddMessagesBuffered adds to the buffered message counter.
func (m *Metrics) AddMessagesBuffered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MessagesBuffered.Add(float64(n))
}

// SetQueueDepth records the arrival queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// IncBatchesEmitted increments the batch notification counter.
func (m *Metrics) IncBatchesEmitted() {
	if m == nil {
		return
	}
	m.BatchesEmitted.Inc()
}

// ObserveBatchSize records the size of a drained batch.
func (m *Metrics) ObserveBatchSize(n int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(n))
}

// AddBufferEvictions adds to the eviction counter.
func (m *Metrics) AddBufferEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BufferEvictions.Add(float64(n))
}

// SetBufferUsage records the buffered bytes and topic count gauges.
func (m *Metrics) SetBufferUsage(bytes int64, topics int) {
	if m == nil {
		return
	}
	m.BufferedBytes.Set(float64(bytes))
	m.BufferedTopics.Set(float64(topics))
}

// IncSettingsUpdates increments the applied settings update counter.
func (m *Metrics) IncSettingsUpdates() {
	if m == nil {
		return
	}
	m.SettingsUpdates.Inc()
}
