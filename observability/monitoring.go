// Package observability aggregates runtime metrics for the /api/stats
// endpoint: relay counters, connection counts, and process health.
package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	_ "github.com/shirou/gopsutil"
	"github.com/shirou/gopsutil/process"
)

// MonitoringStats is the snapshot served to operators.
type MonitoringStats struct {
	// --- RELAY METRICS ---
	Connections       int    `json:"connections"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	MessagesQueued    uint64 `json:"messages_queued"`
	CallsStarted      uint64 `json:"calls_started"`
	ErrorCount        uint64 `json:"error_count"`

	// --- SYSTEM METRICS ---
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
	RAMPercent float32 `json:"ram_percent"`
	UptimeSec  int64   `json:"uptime_sec"`
}

// MonitoringManager collects counters from the relay and samples the
// process on demand. Counter updates are lock-free.
type MonitoringManager struct {
	log       *slog.Logger
	startedAt time.Time
	self      *process.Process

	// connections is supplied by the presence registry.
	connections func() int

	MessagesDelivered uint64
	MessagesQueued    uint64
	CallsStarted      uint64
	ErrorCount        uint64
}

func NewMonitoringManager(log *slog.Logger, connections func() int) *MonitoringManager {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process self-inspection unavailable", "error", err)
	}
	return &MonitoringManager{
		log:         log,
		startedAt:   time.Now(),
		self:        self,
		connections: connections,
	}
}

func (mm *MonitoringManager) IncrDelivered() {
	atomic.AddUint64(&mm.MessagesDelivered, 1)
}

func (mm *MonitoringManager) IncrQueued() {
	atomic.AddUint64(&mm.MessagesQueued, 1)
}

func (mm *MonitoringManager) IncrCallsStarted() {
	atomic.AddUint64(&mm.CallsStarted, 1)
}

func (mm *MonitoringManager) IncrErrorCount() {
	atomic.AddUint64(&mm.ErrorCount, 1)
}

// GetLatest samples the process and assembles a snapshot.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	stats := MonitoringStats{
		MessagesDelivered: atomic.LoadUint64(&mm.MessagesDelivered),
		MessagesQueued:    atomic.LoadUint64(&mm.MessagesQueued),
		CallsStarted:      atomic.LoadUint64(&mm.CallsStarted),
		ErrorCount:        atomic.LoadUint64(&mm.ErrorCount),
		Goroutines:        runtime.NumGoroutine(),
		UptimeSec:         int64(time.Since(mm.startedAt).Seconds()),
	}
	if mm.connections != nil {
		stats.Connections = mm.connections()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC

	if mm.self != nil {
		if cpu, err := mm.self.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		} else {
			mm.log.Debug("cpu sample failed", "error", err)
		}
		if ram, err := mm.self.MemoryPercent(); err == nil {
			stats.RAMPercent = ram
		} else {
			mm.log.Debug("ram sample failed", "error", err)
		}
	}
	return stats
}
