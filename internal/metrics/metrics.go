// Copyright 2026 The Hookwise Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes cascade counters in the Prometheus text format.
//
// Every method is safe on a nil *Metrics, so components take an optional
// handle and record unconditionally.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Supervisor call outcomes besides a verdict's decision.
const (
	OutcomeUnavailable = "unavailable"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
)

// Metrics owns a registry and the cascade's collectors.
type Metrics struct {
	registry *prometheus.Registry

	decisions          *prometheus.CounterVec
	evalDuration       *prometheus.HistogramVec
	supervisorCalls    *prometheus.CounterVec
	supervisorDuration prometheus.Histogram
	humanWaiting       prometheus.Gauge
	redactions         prometheus.Counter
}

// New registers the hookwise collectors plus the Go and process collectors
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookwise_decisions_total",
				Help: "Tool-call decisions by decision and deciding tier.",
			},
			[]string{"decision", "tier"},
		),
		evalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "hookwise_eval_duration_seconds",
				Help: "Cascade evaluation time by deciding tier.",
				Buckets: []float64{
					0.000001, 0.00001, 0.0001, 0.001, 0.01,
					0.1, 0.5, 1, 5, 30, 120,
				},
			},
			[]string{"tier"},
		),
		supervisorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookwise_supervisor_calls_total",
				Help: "Supervisor calls by outcome (allow, ask, deny, unavailable, timeout, error).",
			},
			[]string{"outcome"},
		),
		supervisorDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hookwise_supervisor_duration_seconds",
				Help:    "Supervisor call latency.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		humanWaiting: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hookwise_human_waiting",
				Help: "Calls currently blocked on a human answer.",
			},
		),
		redactions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hookwise_redactions_total",
				Help: "Secrets removed from tool inputs before caching.",
			},
		),
	}
	m.registry.MustRegister(
		m.decisions,
		m.evalDuration,
		m.supervisorCalls,
		m.supervisorDuration,
		m.humanWaiting,
		m.redactions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordDecision counts one cascade result.
func (m *Metrics) RecordDecision(d decision.Decision, tier decision.Tier, took time.Duration) {
	if m == nil {
		return
	}
	m.decisions.With(prometheus.Labels{"decision": d.String(), "tier": tier.String()}).Inc()
	m.evalDuration.With(prometheus.Labels{"tier": tier.String()}).Observe(took.Seconds())
}

// RecordSupervisor counts one supervisor call. err takes precedence over v.
func (m *Metrics) RecordSupervisor(v supervisor.Verdict, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.supervisorCalls.With(prometheus.Labels{"outcome": SupervisorOutcome(v, err)}).Inc()
	m.supervisorDuration.Observe(took.Seconds())
}

// SupervisorOutcome classifies a supervisor call for labelling.
func SupervisorOutcome(v supervisor.Verdict, err error) string {
	switch {
	case err == nil:
		return v.Decision.String()
	case errors.Is(err, supervisor.ErrUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

// HumanWaiting adjusts the number of calls blocked on a human.
func (m *Metrics) HumanWaiting(delta int) {
	if m == nil {
		return
	}
	m.humanWaiting.Add(float64(delta))
}

// AddRedactions counts removed secrets.
func (m *Metrics) AddRedactions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.redactions.Add(float64(n))
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument wraps a supervisor backend so every call is recorded.
func (m *Metrics) Instrument(b supervisor.Backend) supervisor.Backend {
	if m == nil {
		return b
	}
	return &instrumented{Backend: b, metrics: m}
}

type instrumented struct {
	supervisor.Backend
	metrics *Metrics
}

func (i *instrumented) Evaluate(ctx context.Context, req supervisor.Request) (supervisor.Verdict, error) {
	start := time.Now()
	v, err := i.Backend.Evaluate(ctx, req)
	i.metrics.RecordSupervisor(v, err, time.Since(start))
	return v, err
}
