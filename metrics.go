// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by channels.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks
// are executed inline with channel lifecycle transitions.
type Collector interface {
	// IncChannelCreated counts bootstrap outcomes: "live", "lame", or "none".
	IncChannelCreated(result string)

	// IncChannelClosed counts channel teardowns.
	IncChannelClosed()

	// IncConnectAttempt counts connection attempts: "ok" or "error".
	IncConnectAttempt(result string)

	// IncStateTransition counts transitions into the named state.
	IncStateTransition(state string)
}

type noopCollector struct{}

// NewNoopCollector returns a [Collector] that discards all metrics.
func NewNoopCollector() Collector {
	return noopCollector{}
}

func (noopCollector) IncChannelCreated(string)  {}
func (noopCollector) IncChannelClosed()         {}
func (noopCollector) IncConnectAttempt(string)  {}
func (noopCollector) IncStateTransition(string) {}

// PrometheusCollector exposes channel telemetry via Prometheus.
type PrometheusCollector struct {
	channelsCreated  *prometheus.CounterVec
	channelsClosed   prometheus.Counter
	connectAttempts  *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
}

var _ Collector = &PrometheusCollector{}

// NewPrometheusCollector registers the required metrics with the
// provided registerer and returns the collector.
//
// Registering twice against the same registerer reuses the existing
// metrics instead of failing.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	channelsCreated, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "grpc_channels_created_total",
		Help: "Number of channel bootstrap outcomes by result.",
	}, []string{"result"})
	if err != nil {
		return nil, err
	}

	channelsClosedVec, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "grpc_channels_closed_total",
		Help: "Number of channels torn down.",
	}, nil)
	if err != nil {
		return nil, err
	}

	connectAttempts, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "grpc_channel_connect_attempts_total",
		Help: "Number of per-address connection attempts by result.",
	}, []string{"result"})
	if err != nil {
		return nil, err
	}

	stateTransitions, err := registerCounterVec(reg, prometheus.CounterOpts{
		Name: "grpc_channel_state_transitions_total",
		Help: "Number of connectivity state transitions by new state.",
	}, []string{"state"})
	if err != nil {
		return nil, err
	}

	return &PrometheusCollector{
		channelsCreated:  channelsCreated,
		channelsClosed:   channelsClosedVec.WithLabelValues(),
		connectAttempts:  connectAttempts,
		stateTransitions: stateTransitions,
	}, nil
}

// registerCounterVec registers a counter vector, tolerating duplicate
// registration by adopting the existing collector.
func registerCounterVec(reg prometheus.Registerer,
	opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

// IncChannelCreated implements [Collector].
func (p *PrometheusCollector) IncChannelCreated(result string) {
	if p == nil || p.channelsCreated == nil {
		return
	}
	p.channelsCreated.WithLabelValues(result).Inc()
}

// IncChannelClosed implements [Collector].
func (p *PrometheusCollector) IncChannelClosed() {
	if p == nil || p.channelsClosed == nil {
		return
	}
	p.channelsClosed.Inc()
}

// IncConnectAttempt implements [Collector].
func (p *PrometheusCollector) IncConnectAttempt(result string) {
	if p == nil || p.connectAttempts == nil {
		return
	}
	p.connectAttempts.WithLabelValues(result).Inc()
}

// IncStateTransition implements [Collector].
func (p *PrometheusCollector) IncStateTransition(state string) {
	if p == nil || p.stateTransitions == nil {
		return
	}
	p.stateTransitions.WithLabelValues(state).Inc()
}
