package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegisterAndRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.SetConnected(true)
	m.IncConnectAttempts()
	m.IncReconnectAttempts()
	m.IncMessagesReceived()
	m.IncMessagesReceived()
	m.AddMessagesBuffered(75)
	m.SetQueueDepth(12)
	m.IncBatchesEmitted()
	m.ObserveBatchSize(75)
	m.AddBufferEvictions(3)
	m.SetBufferUsage(2048, 4)
	m.IncSettingsUpdates()

	if got := testutil.ToFloat64(m.ConnectionUp); got != 1 {
		t.Errorf("ConnectionUp = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesReceived); got != 2 {
		t.Errorf("MessagesReceived = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesBuffered); got != 75 {
		t.Errorf("MessagesBuffered = %v, want 75", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 12 {
		t.Errorf("QueueDepth = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.BufferEvictions); got != 3 {
		t.Errorf("BufferEvictions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.BufferedBytes); got != 2048 {
		t.Errorf("BufferedBytes = %v, want 2048", got)
	}
	if got := testutil.ToFloat64(m.BufferedTopics); got != 4 {
		t.Errorf("BufferedTopics = %v, want 4", got)
	}

	m.SetConnected(false)
	if got := testutil.ToFloat64(m.ConnectionUp); got != 0 {
		t.Errorf("ConnectionUp after disconnect = %v, want 0", got)
	}
}

func TestMetricsNegativeDeltasIgnored(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.AddMessagesBuffered(-1)
	m.AddBufferEvictions(0)

	if got := testutil.ToFloat64(m.MessagesBuffered); got != 0 {
		t.Errorf("MessagesBuffered = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.BufferEvictions); got != 0 {
		t.Errorf("BufferEvictions = %v, want 0", got)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics

	m.SetConnected(true)
	m.IncConnectAttempts()
	m.IncReconnectAttempts()
	m.IncPublishFailures()
	m.IncMessagesReceived()
	m.AddMessagesBuffered(10)
	m.SetQueueDepth(5)
	m.IncBatchesEmitted()
	m.ObserveBatchSize(1)
	m.AddBufferEvictions(1)
	m.SetBufferUsage(1, 1)
	m.IncSettingsUpdates()
}
