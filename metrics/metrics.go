// Package metrics exposes prometheus collectors for the request pipeline.
//
// All methods are safe on a nil *Metrics, so components can record
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authpipe"

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Request outcomes.
const (
	RequestOK           = "ok"
	RequestUnauthorized = "unauthorized"
	RequestError        = "error"
)

type Metrics struct {
	refreshes *prometheus.CounterVec
	waiters   prometheus.Counter
	inFlight  prometheus.Gauge
	requests  *prometheus.CounterVec
	retries   prometheus.Counter
}

// RefreshStarted marks the start of a renewal call.
func (m *Metrics) RefreshStarted() {
	if m == nil {
		return
	}
	m.inFlight.Set(1)
}

// RefreshFinished records a settled renewal call.
func (m *Metrics) RefreshFinished(outcome string) {
	if m == nil {
		return
	}
	m.inFlight.Set(0)
	m.refreshes.WithLabelValues(outcome).Inc()
}

// WaiterQueued records a caller parked behind an in-flight refresh.
func (m *Metrics) WaiterQueued() {
	if m == nil {
		return
	}
	m.waiters.Inc()
}

// Request records a completed pipeline round trip.
func (m *Metrics) Request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// Retried records a request replayed after a refresh.
func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Refreshes returns the refresh counter for outcome.
func (m *Metrics) Refreshes(outcome string) prometheus.Counter {
	return m.refreshes.WithLabelValues(outcome)
}

// Waiters returns the queued waiter counter.
func (m *Metrics) Waiters() prometheus.Counter {
	return m.waiters
}

// Retries returns the replay counter.
func (m *Metrics) Retries() prometheus.Counter {
	return m.retries
}

// Requests returns the request counter for outcome.
func (m *Metrics) Requests(outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(outcome)
}

// New creates collectors and registers them with registerer when it is not nil.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	ret := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Renewal calls sent to the server, by outcome.",
		}, []string{"outcome"}),
		waiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_waiters_total",
			Help:      "Callers that waited for an in-flight renewal instead of starting one.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_inflight",
			Help:      "1 while a renewal call is in flight.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Pipeline round trips, by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Requests replayed once after a renewal.",
		}),
	}
	if registerer == nil {
		return ret, nil
	}
	for _, collector := range []prometheus.Collector{ret.refreshes, ret.waiters, ret.inFlight, ret.requests, ret.retries} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return ret, nil
}
