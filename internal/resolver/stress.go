package resolver

import (
	"math"
	"sync"
	"time"
)

const (
	// StressThreshold is the level above which the resolver is considered
	// stressed.
	StressThreshold = 8.0

	stressHistory = 100
	stressDecay   = time.Minute
)

// Zone buckets a stress level.
type Zone int

const (
	ZoneOK Zone = iota
	ZoneWarning
	ZoneDanger
	ZoneCritical
)

func (z Zone) String() string {
	switch z {
	case ZoneOK:
		return "ok"
	case ZoneWarning:
		return "warning"
	case ZoneDanger:
		return "danger"
	default:
		return "critical"
	}
}

// ZoneFor maps a stress level to its zone.
func ZoneFor(stress float64) Zone {
	switch {
	case stress < 3:
		return ZoneOK
	case stress < 6:
		return ZoneWarning
	case stress < 9:
		return ZoneDanger
	default:
		return ZoneCritical
	}
}

type stressPoint struct {
	at     time.Time
	value  float64
	source string
}

// StressMonitor keeps a bounded history of resolution outcomes and reports a
// time-decayed average of them. Points lose weight exponentially with a one
// minute time constant. Safe for concurrent use.
type StressMonitor struct {
	mu     sync.Mutex
	points []stressPoint
	now    func() time.Time
}

func NewStressMonitor() *StressMonitor {
	return &StressMonitor{now: time.Now}
}

// RecordResolution adds the cost of a successful resolution over complexity
// components that took iterations steps.
func (m *StressMonitor) RecordResolution(complexity, iterations int) {
	if iterations < 1 {
		iterations = 1
	}
	m.record(float64(complexity)*math.Log(float64(iterations)), "resolution")
}

func (m *StressMonitor) RecordConflict(count int) {
	m.record(float64(count)*2, "conflict")
}

func (m *StressMonitor) RecordCycle(size int) {
	m.record(math.Pow(float64(size), 1.5), "cycle")
}

func (m *StressMonitor) record(value float64, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, stressPoint{at: m.now(), value: value, source: source})
	if n := len(m.points) - stressHistory; n > 0 {
		m.points = append(m.points[:0], m.points[n:]...)
	}
}

// Current returns the decayed weighted average of the recorded points, or 0
// when nothing has been recorded.
func (m *StressMonitor) Current() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var sum, total float64
	for _, p := range m.points {
		w := math.Exp(-now.Sub(p.at).Seconds() / stressDecay.Seconds())
		sum += p.value * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func (m *StressMonitor) Stressed() bool { return m.Current() > StressThreshold }

func (m *StressMonitor) Zone() Zone { return ZoneFor(m.Current()) }

// Counts reports how many retained points came from each source.
func (m *StressMonitor) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, 3)
	for _, p := range m.points {
		out[p.source]++
	}
	return out
}

func (m *StressMonitor) Reset() {
	m.mu.Lock()
	m.points = nil
	m.mu.Unlock()
}
