package privval

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "privval"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of requests by chain and final state.
	Requests metrics.Counter
	// Time spent waiting for the provider signature.
	SignDuration metrics.Histogram
	// Time spent persisting the high-water-mark.
	CommitDuration metrics.Histogram
	// Height of the last returned signature.
	LastSignedHeight metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Requests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests",
			Help:      "Number of signing requests by final state.",
		}, append(labels, "chain_id", "state")).With(labelsAndValues...),
		SignDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sign_duration_seconds",
			Help:      "Time taken by the signing provider.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		}, append(labels, "chain_id")).With(labelsAndValues...),
		CommitDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commit_duration_seconds",
			Help:      "Time taken to persist the high-water-mark.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, append(labels, "chain_id")).With(labelsAndValues...),
		LastSignedHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "last_signed_height",
			Help:      "Height of the last signed message.",
		}, append(labels, "chain_id")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Requests:         discard.NewCounter(),
		SignDuration:     discard.NewHistogram(),
		CommitDuration:   discard.NewHistogram(),
		LastSignedHeight: discard.NewGauge(),
	}
}
