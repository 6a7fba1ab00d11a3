// ABOUTME: Conversion of raw engine statistics into the gateway's Stats shape
// ABOUTME: CPU percentage from sample deltas, memory in MiB, network in KiB

package runtime

import (
	"fmt"
	"math"
)

// rawStats mirrors the subset of the Docker stats document we read.
type rawStats struct {
	CPUStats    rawCPUStats `json:"cpu_stats"`
	PreCPUStats rawCPUStats `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
		Limit uint64 `json:"limit"`
	} `json:"memory_stats"`
	Networks map[string]struct {
		RxBytes uint64 `json:"rx_bytes"`
		TxBytes uint64 `json:"tx_bytes"`
	} `json:"networks"`
}

type rawCPUStats struct {
	CPUUsage struct {
		TotalUsage  uint64   `json:"total_usage"`
		PercpuUsage []uint64 `json:"percpu_usage"`
	} `json:"cpu_usage"`
	SystemUsage uint64 `json:"system_cpu_usage"`
	OnlineCPUs  uint32 `json:"online_cpus"`
}

// computeStats derives a Stats sample from two consecutive engine readings.
func computeStats(raw rawStats) Stats {
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)

	cpus := float64(raw.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}

	var cpu float64
	if systemDelta > 0 && cpuDelta > 0 {
		cpu = cpuDelta / systemDelta * cpus * 100
	}

	var rx, tx uint64
	for _, n := range raw.Networks {
		rx += n.RxBytes
		tx += n.TxBytes
	}

	return Stats{
		CPU:         cpu,
		MemoryUsage: round2(float64(raw.MemoryStats.Usage) / 1024 / 1024),
		MemoryLimit: round2(float64(raw.MemoryStats.Limit) / 1024 / 1024),
		NetworkRx:   fmt.Sprintf("%.2f KB", float64(rx)/1024),
		NetworkTx:   fmt.Sprintf("%.2f KB", float64(tx)/1024),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
