package controllers

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	semverxControllerReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semverx_controller_reconcile_total",
			Help: "Number of reconciliations by controller.",
		},
		[]string{"controller"},
	)
	semverxControllerReconcileErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semverx_controller_reconcile_error_total",
			Help: "Number of reconciliation errors by controller.",
		},
		[]string{"controller"},
	)

	componentsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "semverx_components_registered",
			Help: "Number of components currently held by the catalog.",
		},
	)

	componentResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semverx_component_resolution_duration_seconds",
			Help:    "Time taken to resolve a component's dependency plan.",
			Buckets: prometheus.DefBuckets,
		},
	)

	componentSwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semverx_componentswap_total",
			Help: "Number of ComponentSwaps completed by final phase.",
		},
		[]string{"phase"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		semverxControllerReconcileTotal,
		semverxControllerReconcileErrorTotal,
		componentsRegistered,
		componentResolutionDuration,
		componentSwapsTotal,
	)
}
