package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Resource gauges live next to the lifecycle collectors and follow the
// same Register/no-op discipline.
var (
	serviceCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackrun",
			Subsystem: "service",
			Name:      "cpu_percent",
			Help:      "CPU usage of the service process.",
		}, []string{"service"},
	)
	serviceMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackrun",
			Subsystem: "service",
			Name:      "memory_mb",
			Help:      "Resident memory of the service process in MB.",
		}, []string{"service"},
	)
)

// TrackedProcess is the minimal view the sampler needs of a service.
type TrackedProcess struct {
	Name string
	PID  int
}

// ResourceSample is the latest reading for one service.
type ResourceSample struct {
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	SampledAt  time.Time `json:"sampled_at"`
}

// ResourceSampler periodically reads CPU and memory for the tracked
// services and publishes them as gauges. Readings for processes that
// vanished between listing and sampling are dropped silently.
type ResourceSampler struct {
	interval time.Duration
	list     func() []TrackedProcess

	mu     sync.Mutex
	latest map[string]ResourceSample
}

// NewResourceSampler builds a sampler over list. Intervals under one
// second are clamped; per-PID sampling is not free.
func NewResourceSampler(interval time.Duration, list func() []TrackedProcess) *ResourceSampler {
	if interval < time.Second {
		interval = time.Second
	}
	return &ResourceSampler{
		interval: interval,
		list:     list,
		latest:   make(map[string]ResourceSample),
	}
}

// Run samples until ctx is cancelled. Call it on its own goroutine.
func (rs *ResourceSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.sampleOnce()
		}
	}
}

func (rs *ResourceSampler) sampleOnce() {
	now := time.Now()
	seen := make(map[string]struct{})
	for _, tp := range rs.list() {
		if tp.PID <= 0 {
			continue
		}
		p, err := gopsproc.NewProcess(int32(tp.PID))
		if err != nil {
			continue
		}
		cpu, err := p.CPUPercent()
		if err != nil {
			continue
		}
		mem, err := p.MemoryInfo()
		if err != nil || mem == nil {
			continue
		}
		sample := ResourceSample{
			Name:       tp.Name,
			PID:        tp.PID,
			CPUPercent: cpu,
			MemoryMB:   float64(mem.RSS) / (1024 * 1024),
			SampledAt:  now,
		}
		rs.mu.Lock()
		rs.latest[tp.Name] = sample
		rs.mu.Unlock()
		seen[tp.Name] = struct{}{}
		if regOK.Load() {
			serviceCPUPercent.WithLabelValues(tp.Name).Set(sample.CPUPercent)
			serviceMemoryMB.WithLabelValues(tp.Name).Set(sample.MemoryMB)
		}
	}
	// Drop readings for services that are gone so status output does
	// not show stale numbers.
	rs.mu.Lock()
	for name := range rs.latest {
		if _, ok := seen[name]; !ok {
			delete(rs.latest, name)
		}
	}
	rs.mu.Unlock()
}

// Latest returns the most recent sample per service.
func (rs *ResourceSampler) Latest() []ResourceSample {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]ResourceSample, 0, len(rs.latest))
	for _, s := range rs.latest {
		out = append(out, s)
	}
	return out
}
