// Package metrics provides Prometheus metrics for the dispensing service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	PatientsRegistered     prometheus.Counter
	PrescriptionsSaved     prometheus.Counter
	DistributionsCompleted *prometheus.CounterVec
	WorklistSize           *prometheus.GaugeVec
	SlotUpdates            *prometheus.CounterVec
	SlotRejections         *prometheus.CounterVec
	SlotsAssigned          prometheus.Gauge
	SlotsLowStock          prometheus.Gauge
	OperationDuration      *prometheus.HistogramVec
	EventsPublished        *prometheus.CounterVec
	OutboxPending          prometheus.Gauge
	RestockRequests        *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PatientsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patients_registered_total",
			Help: "Total patients registered",
		}),
		PrescriptionsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_saved_total",
			Help: "Total prescription list replacements",
		}),
		DistributionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "distributions_completed_total",
			Help: "Total mark-completed calls by time of day",
		}, []string{"time"}),
		WorklistSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worklist_entries",
			Help: "Patients in the last computed worklist by time of day",
		}, []string{"time"}),
		SlotUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slot_bank_updates_total",
			Help: "Slot bank update attempts by result",
		}, []string{"result"}),
		SlotRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slot_bank_rejections_total",
			Help: "Rejected slot bank updates by reason",
		}, []string{"reason"}),
		SlotsAssigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slots_assigned",
			Help: "Slots with a medicine assigned",
		}),
		SlotsLowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slots_low_stock",
			Help: "Slots in Low Stock status",
		}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispensing_operation_duration_seconds",
			Help:    "Dispensing operation duration",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events handed to the publisher by result",
		}, []string{"event_type", "result"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		RestockRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_requests_total",
			Help: "Restock requests sent to the pharmacy by result",
		}, []string{"result"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.PatientsRegistered,
		m.PrescriptionsSaved,
		m.DistributionsCompleted,
		m.WorklistSize,
		m.SlotUpdates,
		m.SlotRejections,
		m.SlotsAssigned,
		m.SlotsLowStock,
		m.OperationDuration,
		m.EventsPublished,
		m.OutboxPending,
		m.RestockRequests,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for the default gatherer
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler exposing the given gatherer
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
