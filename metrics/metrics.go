// Package metrics bundles Prometheus collectors for the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all collectors on a dedicated registry.
type Metrics struct {
	Registry                *prometheus.Registry
	PollsTotal              *prometheus.CounterVec
	AvailabilityEventsTotal prometheus.Counter
	PurchasesTotal          *prometheus.CounterVec
	RequestDuration         prometheus.Histogram
	RetriesTotal            prometheus.Counter
	ErrorsTotal             *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	polls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_polls_total",
			Help: "Total availability polls by outcome.",
		},
		[]string{"outcome"},
	)
	availabilityEvents := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hunter_availability_events_total",
			Help: "Total availability transitions that fired a callback.",
		},
	)
	purchases := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_purchases_total",
			Help: "Total purchase attempts by status.",
		},
		[]string{"status"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hunter_api_request_duration_seconds",
			Help:    "Marketplace API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hunter_api_retries_total",
			Help: "Total marketplace API retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_api_errors_total",
			Help: "Total marketplace API errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(polls, availabilityEvents, purchases, requestDuration, retries, errorsTotal)

	return &Metrics{
		Registry:                registry,
		PollsTotal:              polls,
		AvailabilityEventsTotal: availabilityEvents,
		PurchasesTotal:          purchases,
		RequestDuration:         requestDuration,
		RetriesTotal:            retries,
		ErrorsTotal:             errorsTotal,
	}
}

// IncPoll increments the poll counter for an outcome label.
func (m *Metrics) IncPoll(outcome string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(outcome).Inc()
}

// IncAvailabilityEvent increments the availability transition counter.
func (m *Metrics) IncAvailabilityEvent() {
	if m == nil {
		return
	}
	m.AvailabilityEventsTotal.Inc()
}

// IncPurchase increments the purchase counter for a status label.
func (m *Metrics) IncPurchase(status string) {
	if m == nil {
		return
	}
	m.PurchasesTotal.WithLabelValues(status).Inc()
}

// ObserveDuration records an API request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the error counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
