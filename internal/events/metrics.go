package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts events into Prometheus collectors. Register it with
// MustRegister on the registry the process exposes.
type MetricsSink struct {
	swapPhases       *prometheus.CounterVec
	resolutionErrors *prometheus.CounterVec
	integrityErrors  prometheus.Counter
	fatal            prometheus.Counter
}

func NewMetricsSink() *MetricsSink {
	return &MetricsSink{
		swapPhases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semverx_swap_phase_transitions_total",
				Help: "Number of hot-swap phase transitions by phase.",
			},
			[]string{"phase"},
		),
		resolutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semverx_resolution_errors_total",
				Help: "Number of failed resolutions by reason.",
			},
			[]string{"reason"},
		),
		integrityErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "semverx_integrity_errors_total",
				Help: "Number of checksum mismatches found outside a swap.",
			},
		),
		fatal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "semverx_swap_fatal_total",
				Help: "Number of swaps whose rollback could not restore the prior component.",
			},
		),
	}
}

func (m *MetricsSink) Emit(e Event) {
	switch e.Kind {
	case KindSwapPhase:
		m.swapPhases.WithLabelValues(e.Phase).Inc()
	case KindResolutionError:
		m.resolutionErrors.WithLabelValues(e.Reason).Inc()
	case KindIntegrity:
		m.integrityErrors.Inc()
	}
	if e.Fatal {
		m.fatal.Inc()
	}
}

// Collectors returns the collectors backing the sink.
func (m *MetricsSink) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.swapPhases, m.resolutionErrors, m.integrityErrors, m.fatal}
}

// MustRegister registers the sink's collectors with reg.
func (m *MetricsSink) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Collectors()...)
}
