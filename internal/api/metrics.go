package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete monitor metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          *MQTTMetrics   `json:"mqtt,omitempty"`
	Bus           BusMetrics     `json:"bus"`
	Devices       DeviceMetrics  `json:"devices"`
	LastRun       *RunMetrics    `json:"last_run,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics. Absent on the memory bus.
type MQTTMetrics struct {
	Connected     bool     `json:"connected"`
	Subscriptions []string `json:"subscriptions"`
}

// BusMetrics counts telegrams seen since the server started.
type BusMetrics struct {
	Telegrams uint64 `json:"telegrams"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// RunMetrics summarises the most recent suite run.
type RunMetrics struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

// handleMetrics returns monitor metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Bus: BusMetrics{
			Telegrams: s.telegrams.Load(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{
			Connected:     s.mqtt.IsConnected(),
			Subscriptions: s.mqtt.Subscriptions(),
		}
	}

	devices := s.registry.List()
	metrics.Devices = DeviceMetrics{
		Total:  len(devices),
		ByType: make(map[string]int),
	}
	for _, d := range devices {
		metrics.Devices.ByType[string(d.Type())]++
	}

	if report := s.lastRun.Load(); report != nil {
		metrics.LastRun = &RunMetrics{
			RunID:      report.RunID,
			StartedAt:  report.StartedAt.Format(time.RFC3339),
			DurationMS: report.DurationMS,
			Passed:     report.Passed,
			Failed:     report.Failed,
			Skipped:    report.Skipped,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
