package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors of the admission workflow. Each instance owns
// a private registry so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Admissions       *prometheus.CounterVec
	Releases         *prometheus.CounterVec
	Drains           *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	QueueReturns     prometheus.Counter
	HookFailures     prometheus.Counter
	LiveConnections  prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admissions_total",
			Help: "Admission attempts by outcome (admitted, queued, skipped, error).",
		}, []string{"outcome"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "capacity_releases_total",
			Help: "Capacity releases by outcome (released, duplicate, error).",
		}, []string{"outcome"}),
		Drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_drains_total",
			Help: "Waiting queue entries handled by the drainer, by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Committed order status transitions.",
		}, []string{"from", "to"}),
		QueueReturns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waiting_queue_returns_total",
			Help: "Leases handed back to the waiting queue unconsumed.",
		}),
		HookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "post_commit_hook_failures_total",
			Help: "Post-commit side effects that gave up after retries.",
		}),
		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "push_connections",
			Help: "Websocket connections held by this process.",
		}),
	}
	reg.MustRegister(
		m.Admissions, m.Releases, m.Drains, m.Transitions, m.QueueReturns,
		m.HookFailures, m.LiveConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
