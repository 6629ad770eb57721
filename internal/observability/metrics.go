// Package observability tracks task and compensation counters for the
// metrics endpoint.
package observability

import (
	"sync"
	"time"
)

// TaskSnapshot summarizes the calls seen for one participant operation.
type TaskSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// MethodSnapshot is kept as the map value name consumers decode into.
type MethodSnapshot = TaskSnapshot

// CompensationSnapshot counts compensation outcomes across all attempts.
type CompensationSnapshot struct {
	Applied int64 `json:"applied"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

// Snapshot is the JSON shape served by the metrics endpoint.
type Snapshot struct {
	UptimeSec     int64                     `json:"uptime_sec"`
	TotalTasks    int64                     `json:"total_tasks"`
	TotalErrors   int64                     `json:"total_errors"`
	InFlight      int64                     `json:"in_flight"`
	Compensations CompensationSnapshot      `json:"compensations"`
	Methods       map[string]MethodSnapshot `json:"methods"`
}

type taskStats struct {
	count    int64
	errors   int64
	inFlight int64
	totalDur time.Duration
	maxDur   time.Duration
	lastDur  time.Duration
}

func (s *taskStats) record(dur time.Duration, failed bool) {
	s.inFlight--
	s.count++
	if failed {
		s.errors++
	}
	s.totalDur += dur
	if dur > s.maxDur {
		s.maxDur = dur
	}
	s.lastDur = dur
}

func (s *taskStats) snapshot() TaskSnapshot {
	out := TaskSnapshot{
		Count:         s.count,
		Errors:        s.errors,
		InFlight:      s.inFlight,
		MaxLatencyMs:  float64(s.maxDur.Milliseconds()),
		LastLatencyMs: float64(s.lastDur.Milliseconds()),
	}
	if s.count > 0 {
		out.AvgLatencyMs = float64(s.totalDur.Milliseconds()) / float64(s.count)
	}
	return out
}

// Metrics aggregates per-operation call stats and compensation outcomes.
// A nil *Metrics is a no-op everywhere.
type Metrics struct {
	start time.Time

	mu            sync.Mutex
	tasks         map[string]*taskStats
	compensations CompensationSnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{
		start: time.Now(),
		tasks: make(map[string]*taskStats),
	}
}

// CallSpan measures one task execution from Start to End.
type CallSpan struct {
	metrics *Metrics
	method  string
	begun   time.Time
}

// Start marks a task as in flight and returns its span.
func (m *Metrics) Start(method string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	m.statsFor(method).inFlight++
	m.mu.Unlock()
	return &CallSpan{metrics: m, method: method, begun: time.Now()}
}

// End closes the span; failed marks the task as errored.
func (s *CallSpan) End(failed bool) {
	if s == nil || s.metrics == nil {
		return
	}
	dur := time.Since(s.begun)
	m := s.metrics
	m.mu.Lock()
	m.statsFor(s.method).record(dur, failed)
	m.mu.Unlock()
}

// CompensationApplied records a compensation that credited stock back.
func (m *Metrics) CompensationApplied() { m.bumpCompensation(func(c *CompensationSnapshot) { c.Applied++ }) }

// CompensationSkipped records a redelivered compensation that was ignored.
func (m *Metrics) CompensationSkipped() { m.bumpCompensation(func(c *CompensationSnapshot) { c.Skipped++ }) }

// CompensationFailed records a compensation that could not be applied.
func (m *Metrics) CompensationFailed() { m.bumpCompensation(func(c *CompensationSnapshot) { c.Failed++ }) }

func (m *Metrics) bumpCompensation(bump func(*CompensationSnapshot)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	bump(&m.compensations)
	m.mu.Unlock()
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSec:     int64(time.Since(m.start).Seconds()),
		Compensations: m.compensations,
		Methods:       make(map[string]MethodSnapshot, len(m.tasks)),
	}
	for method, stats := range m.tasks {
		snap.Methods[method] = stats.snapshot()
		snap.TotalTasks += stats.count
		snap.TotalErrors += stats.errors
		snap.InFlight += stats.inFlight
	}
	return snap
}

// statsFor must be called with the mutex held.
func (m *Metrics) statsFor(method string) *taskStats {
	stats, ok := m.tasks[method]
	if !ok {
		stats = &taskStats{}
		m.tasks[method] = stats
	}
	return stats
}
