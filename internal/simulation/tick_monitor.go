package simulation

import (
	"sync"
	"time"
)

// TickStats summarises observed battle step durations.
type TickStats struct {
	Ticks    int64         `json:"ticks"`
	Average  time.Duration `json:"average"`
	Max      time.Duration `json:"max"`
	Last     time.Duration `json:"last"`
	Overruns int64         `json:"overruns"`
}

// AverageTPS derives the steps-per-second equivalent of the sampled step duration.
func (s TickStats) AverageTPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop. Steps slower than the budget
// count as overruns.
type TickMonitor struct {
	mu       sync.Mutex
	budget   time.Duration
	ticks    int64
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int64
}

// NewTickMonitor constructs an empty monitor. A zero budget disables overrun tracking.
func NewTickMonitor(budget time.Duration) *TickMonitor {
	return &TickMonitor{budget: budget}
}

// Observe records the duration of a completed simulation step.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	//1.- Count every step, including ones too fast for the clock to resolve.
	m.ticks++
	m.total += duration
	m.last = duration
	//2.- Keep the worst case and the budget overruns for operators.
	if duration > m.max {
		m.max = duration
	}
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickStats {
	if m == nil {
		return TickStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := TickStats{Ticks: m.ticks, Max: m.max, Last: m.last, Overruns: m.overruns}
	if m.ticks > 0 {
		stats.Average = m.total / time.Duration(m.ticks)
	}
	return stats
}

// Reset clears the per-battle statistics when a new battle starts.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ticks, m.total, m.max, m.last, m.overruns = 0, 0, 0, 0, 0
	m.mu.Unlock()
}
