// Package metrics exposes run and sample counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"promptab/internal/abtest"
	"promptab/internal/runner"
)

const namespace = "promptab"

// Collector records sample outcomes, latency and spend. It implements
// runner.Observer.
type Collector struct {
	SamplesTotal   *prometheus.CounterVec
	SampleLatency  *prometheus.HistogramVec
	SampleCostUSD  *prometheus.CounterVec
	RunsTotal      *prometheus.CounterVec
	RunsInProgress prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		SamplesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Planned samples by variant and outcome",
		}, []string{"variant", "outcome"}),
		SampleLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_latency_seconds",
			Help:      "Generation latency of successful samples",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model"}),
		SampleCostUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_cost_usd_total",
			Help:      "Spend of successful samples in US dollars",
		}, []string{"model"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished A/B test runs by terminal status",
		}, []string{"status"}),
		RunsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_progress",
			Help:      "A/B test runs currently executing",
		}),
	}
}

func (c *Collector) OnRunStart(abtest.ABTest, int) {
	if c == nil {
		return
	}
	c.RunsInProgress.Inc()
}

func (c *Collector) OnSample(event runner.SampleEvent) {
	if c == nil {
		return
	}
	c.SamplesTotal.WithLabelValues(event.Planned.VariantID, string(event.Outcome)).Inc()
	if event.Result == nil {
		return
	}
	c.SampleLatency.WithLabelValues(event.Model).Observe(event.Result.Latency.Seconds())
	c.SampleCostUSD.WithLabelValues(event.Model).Add(event.Result.Cost.TotalCost)
}

func (c *Collector) OnRunEnd(test abtest.ABTest, _ abtest.ExecutionProgress) {
	if c == nil {
		return
	}
	c.RunsInProgress.Dec()
	c.RunsTotal.WithLabelValues(string(test.Status)).Inc()
}
