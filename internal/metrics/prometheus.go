package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the onboarding collectors.
type Metrics struct {
	Registrations          *prometheus.CounterVec
	SagaStepFailures       *prometheus.CounterVec
	CompensationFailures   *prometheus.CounterVec
	EventsEmitted          *prometheus.CounterVec
	AliasReservationsSwept prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_registrations_total",
				Help: "Total number of tenant registrations by outcome",
			},
			[]string{"outcome"},
		),
		SagaStepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_saga_step_failures_total",
				Help: "Total number of failed onboarding saga steps",
			},
			[]string{"step"},
		),
		CompensationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_compensation_failures_total",
				Help: "Total number of compensation actions that failed",
			},
			[]string{"action"},
		),
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboarding_events_emitted_total",
				Help: "Total number of tenant events emitted by result",
			},
			[]string{"result"},
		),
		AliasReservationsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "onboarding_alias_reservations_expired_total",
				Help: "Total number of expired alias reservations removed by the sweeper",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Registrations,
		m.SagaStepFailures,
		m.CompensationFailures,
		m.EventsEmitted,
		m.AliasReservationsSwept,
	)
	return m
}

// RegistrationFinished counts a registration outcome.
func (m *Metrics) RegistrationFinished(outcome string) {
	m.Registrations.WithLabelValues(outcome).Inc()
}

// StepFailed counts a failed saga step.
func (m *Metrics) StepFailed(step string) {
	m.SagaStepFailures.WithLabelValues(step).Inc()
}

// CompensationFailed counts a failed compensation action.
func (m *Metrics) CompensationFailed(action string) {
	m.CompensationFailures.WithLabelValues(action).Inc()
}

// EventEmitted counts an event publish attempt.
func (m *Metrics) EventEmitted(result string) {
	m.EventsEmitted.WithLabelValues(result).Inc()
}

// AliasReservationsExpired counts reservations removed by the sweeper.
func (m *Metrics) AliasReservationsExpired(n int64) {
	m.AliasReservationsSwept.Add(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
