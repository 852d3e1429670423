package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of processes that reached the running state.",
		}, []string{"name"},
	)
	processFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "process",
			Name:      "failures_total",
			Help:      "Number of startup failures (missing workdir, readiness timeout, early exit) and unexpected exits.",
		}, []string{"name", "reason"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between process states.",
		}, []string{"name", "from", "to"},
	)
	readyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conductor",
			Subsystem: "process",
			Name:      "ready_duration_seconds",
			Help:      "Time from spawn until the readiness marker was observed.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	portsAllocated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conductor",
			Subsystem: "ports",
			Name:      "allocated",
			Help:      "Currently reserved runtime ports.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conductor",
			Subsystem: "session",
			Name:      "active",
			Help:      "Currently active document sessions.",
		},
	)
	sessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Number of sessions created, by runtime binding mode.",
		}, []string{"mode"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		processStarts, processFailures, processStops, stateTransitions,
		readyDuration, portsAllocated, sessionsActive, sessionsCreated,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers all metrics with the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncFailure(name, reason string) {
	if regOK.Load() {
		processFailures.WithLabelValues(name, reason).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func ObserveReadyDuration(name string, seconds float64) {
	if regOK.Load() {
		readyDuration.WithLabelValues(name).Observe(seconds)
	}
}

func SetPortsAllocated(n int) {
	if regOK.Load() {
		portsAllocated.Set(float64(n))
	}
}

func SetSessionsActive(n int) {
	if regOK.Load() {
		sessionsActive.Set(float64(n))
	}
}

func IncSessionCreated(mode string) {
	if regOK.Load() {
		sessionsCreated.WithLabelValues(mode).Inc()
	}
}
