// metrics.go - Metrics collection for a ledger node
package server

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// NodeMetrics holds granular health metrics for the node.
type NodeMetrics struct {
	UptimeSeconds       int64   `json:"uptime_seconds"`
	ChainLength         int     `json:"chain_length"`
	PendingCount        int     `json:"pending_count"`
	CPULoadPercent      float64 `json:"cpu_load_percent"`
	MemoryMB            float64 `json:"memory_mb"`
	SystemMemoryPercent float64 `json:"system_memory_percent"`
	DiskFreeMB          float64 `json:"disk_free_mb"`
	LastBlockTime       string  `json:"last_block_time,omitempty"`
	LastBlockAgeSeconds int64   `json:"last_block_age_seconds"`
}

// GetNodeMetrics returns current health metrics for the node. Host figures
// that cannot be read are left at zero.
func (s *Server) GetNodeMetrics() NodeMetrics {
	m := NodeMetrics{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		ChainLength:   s.ledger.Length(),
		PendingCount:  len(s.ledger.PendingTransactions()),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.MemoryMB = float64(ms.Alloc) / (1024 * 1024)

	if vm, err := mem.VirtualMemory(); err == nil {
		m.SystemMemoryPercent = vm.UsedPercent
	}
	dir := s.DataDir
	if dir == "" {
		dir = "/"
	}
	if usage, err := disk.Usage(dir); err == nil {
		m.DiskFreeMB = float64(usage.Free) / (1024 * 1024)
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPULoadPercent = pct[0]
	}

	if tip := s.ledger.GetBlocks(1); len(tip) == 1 {
		last := tip[0].Time()
		m.LastBlockTime = last.UTC().Format(time.RFC3339)
		m.LastBlockAgeSeconds = int64(time.Since(last).Seconds())
	}
	return m
}
