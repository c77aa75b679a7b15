// Package metrics publishes execution measurements. The no-op collector
// is the default; the prometheus collector exposes counters and
// histograms for calls, attempts, retries, and marshalling time.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector receives one measurement per execution event. Implementations
// must be safe for concurrent use.
type Collector interface {
	// AttemptCompleted records one attempt, successful or not. attempt is
	// 1-based.
	AttemptCompleted(service, operation string, attempt int, d time.Duration, err error)
	// CallCompleted records a whole execution after its final attempt.
	CallCompleted(service, operation string, attempts int, d time.Duration, err error)
	// MarshalCompleted records the time spent turning input into wire
	// bytes.
	MarshalCompleted(service, operation string, d time.Duration)
}

// Nop returns the collector used when none is configured.
func Nop() Collector { return nop{} }

type nop struct{}

func (nop) AttemptCompleted(string, string, int, time.Duration, error) {}
func (nop) CallCompleted(string, string, int, time.Duration, error)    {}
func (nop) MarshalCompleted(string, string, time.Duration)             {}

const metricNamespace = "vogels"

// Prometheus publishes measurements to a prometheus registry.
type Prometheus struct {
	attempts        *prometheus.CounterVec
	retries         *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	attemptDuration *prometheus.HistogramVec
	marshalDuration *prometheus.HistogramVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus builds the collector and registers its metrics. A nil
// registerer uses the default one. Registering two collectors on one
// registry panics, the way prometheus.MustRegister does.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "attempts_total",
				Help:      "Attempts made, including each call's first try.",
			},
			[]string{"service", "operation", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "retries_total",
				Help:      "Attempts beyond each call's first try.",
			},
			[]string{"service", "operation"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "call_duration_seconds",
				Help:      "Wall time of whole calls, retries included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "attempt_duration_seconds",
				Help:      "Wall time of single attempts.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		marshalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "marshal_duration_seconds",
				Help:      "Time spent marshalling request bodies.",
				Buckets:   []float64{1e-5, 1e-4, 1e-3, 1e-2, 1e-1},
			},
			[]string{"service", "operation"},
		),
	}
	reg.MustRegister(p.attempts, p.retries, p.callDuration, p.attemptDuration, p.marshalDuration)
	return p
}

func (p *Prometheus) AttemptCompleted(service, operation string, attempt int, d time.Duration, err error) {
	p.attempts.WithLabelValues(service, operation, outcome(err)).Inc()
	if attempt > 1 {
		p.retries.WithLabelValues(service, operation).Inc()
	}
	p.attemptDuration.WithLabelValues(service, operation).Observe(d.Seconds())
}

func (p *Prometheus) CallCompleted(service, operation string, attempts int, d time.Duration, err error) {
	p.callDuration.WithLabelValues(service, operation, outcome(err)).Observe(d.Seconds())
}

func (p *Prometheus) MarshalCompleted(service, operation string, d time.Duration) {
	p.marshalDuration.WithLabelValues(service, operation).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
