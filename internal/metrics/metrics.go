package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the Prometheus collectors for the subscription pipeline.
type Metrics struct {
	registry      *prometheus.Registry
	Subscriptions *prometheus.CounterVec
	InsertLatency prometheus.Histogram
}

// New creates the collectors on a private registry so several instances can
// coexist in one process.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		Subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_subscriptions_total",
			Help: "Subscription requests that reached the store, by outcome",
		}, []string{"outcome"}),
		InsertLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsletter_subscription_insert_seconds",
			Help:    "Time spent inserting a subscriber record",
			Buckets: prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(m.Subscriptions, m.InsertLatency)
	return m
}

// ObserveInsert records the outcome and duration of one insert.
func (m *Metrics) ObserveInsert(d time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Subscriptions.WithLabelValues(outcome).Inc()
	m.InsertLatency.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
