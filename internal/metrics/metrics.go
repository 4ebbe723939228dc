// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exports refinement runs as Prometheus metrics. A Collector
// implements refine.Observer and owns its registry, so several collectors can
// coexist in one process (and in tests).
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/refinement-engine/internal/refine"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

const namespace = "refinement_engine"

// Collector records operator applications, rejections, iterations and claim
// counts.
type Collector struct {
	registry *prometheus.Registry

	// Applications counts counted modifications. Labels: operator.
	Applications *prometheus.CounterVec

	// Rejections counts results discarded by the invariant check.
	// Labels: operator.
	Rejections *prometheus.CounterVec

	// ApplyDuration measures single operator applications. Labels: operator.
	ApplyDuration *prometheus.HistogramVec

	// Iterations observes the number of iterations per run.
	Iterations prometheus.Histogram

	// Runs counts finished runs. Labels: outcome (converged, exhausted).
	Runs *prometheus.CounterVec

	// Claims is the claim count after the latest application.
	Claims prometheus.Gauge
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		Applications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "applications_total",
			Help:      "Operator applications that modified the state",
		}, []string{"operator"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "rejections_total",
			Help:      "Operator results discarded by the invariant check",
		}, []string{"operator"}),
		ApplyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "apply_duration_seconds",
			Help:      "Time spent in a single operator application",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 5, 30},
		}, []string{"operator"}),
		Iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iterations_per_run",
			Help:      "Iterations recorded per refinement run",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50, 100},
		}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished refinement runs by outcome",
		}, []string{"outcome"}),
		Claims: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "claims",
			Help:      "Claim count after the latest operator application",
		}),
	}
}

var _ refine.Observer = (*Collector)(nil)

// OperatorApplied implements refine.Observer.
func (c *Collector) OperatorApplied(ev refine.ApplyEvent) {
	c.ApplyDuration.WithLabelValues(ev.Operator).Observe(ev.Duration.Seconds())
	if ev.Rejected {
		c.Rejections.WithLabelValues(ev.Operator).Inc()
		return
	}
	if ev.Modified {
		c.Applications.WithLabelValues(ev.Operator).Inc()
	}
	c.Claims.Set(float64(ev.ClaimsAfter))
}

// IterationCompleted implements refine.Observer.
func (c *Collector) IterationCompleted(types.IterationSnapshot) {}

// RunCompleted implements refine.Observer.
func (c *Collector) RunCompleted(rec *types.Record) {
	c.Iterations.Observe(float64(len(rec.Iterations)))
	c.Runs.WithLabelValues(string(rec.Outcome)).Inc()
	c.Claims.Set(float64(rec.FinalState.Len()))
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// creating parent directories as needed.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
