package ops

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/mqttscope/internal/engine"
	"github.com/nerrad567/mqttscope/internal/infrastructure/mqtt"
)

// Snapshot is the complete stats response.
type Snapshot struct {
	Timestamp     string        `json:"timestamp"`
	Version       string        `json:"version"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Runtime       RuntimeStats  `json:"runtime"`
	Connection    *mqtt.Stats   `json:"connection,omitempty"`
	Pipeline      *engine.Stats `json:"pipeline,omitempty"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleStats returns a point-in-time snapshot of connection and pipeline
// statistics for ad-hoc inspection. Prometheus scraping uses /metrics instead.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := Snapshot{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.broker != nil {
		st := s.broker.Stats()
		snap.Connection = &st
	}

	st := s.pipeline.Stats()
	snap.Pipeline = &st

	writeJSON(w, http.StatusOK, snap)
}
