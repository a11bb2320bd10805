// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics instruments one hubd replica with Prometheus gauges
// and counters for the fleet-monitoring surface a multi-replica
// deployment needs to operate: how many agents this replica currently
// holds, how many terminal sessions are active, how many frames have
// moved in each direction, and how often the Presence Directory could
// not be reached.
//
// A Metrics value is constructed once per replica and passed down to
// the Hub and Session Broker, following the same no-singleton,
// explicit-value convention those two use for everything else. There
// is no package-level registry; callers bring their own
// *prometheus.Registry so tests can assert against a private one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector this replica reports. The nil
// *Metrics is valid and every method on it is a no-op, so components
// that receive an unconfigured Config (metrics disabled) don't need to
// branch on whether instrumentation is wired.
type Metrics struct {
	connectedAgents prometheus.Gauge
	activeSessions  prometheus.Gauge
	framesIn        *prometheus.CounterVec
	framesOut       *prometheus.CounterVec
	presenceErrors  prometheus.Counter
}

// New constructs a Metrics and registers its collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectedAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bureau", Subsystem: "hub", Name: "connected_agents",
			Help: "Agents with a live transport on this replica.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bureau", Subsystem: "session", Name: "active_sessions",
			Help: "Terminal sessions this replica is currently routing, either side.",
		}),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bureau", Subsystem: "hub", Name: "frames_received_total",
			Help: "Frames read from agent transports, by frame type.",
		}, []string{"type"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bureau", Subsystem: "hub", Name: "frames_sent_total",
			Help: "Frames written to agent transports, by frame type.",
		}, []string{"type"}),
		presenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bureau", Subsystem: "presence", Name: "directory_errors_total",
			Help: "Presence Directory calls that returned ErrUnavailable.",
		}),
	}
	reg.MustRegister(m.connectedAgents, m.activeSessions, m.framesIn, m.framesOut, m.presenceErrors)
	return m
}

func (m *Metrics) AgentConnected() {
	if m == nil {
		return
	}
	m.connectedAgents.Inc()
}

func (m *Metrics) AgentDisconnected() {
	if m == nil {
		return
	}
	m.connectedAgents.Dec()
}

func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.framesIn.WithLabelValues(frameType).Inc()
}

func (m *Metrics) FrameSent(frameType string) {
	if m == nil {
		return
	}
	m.framesOut.WithLabelValues(frameType).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) PresenceError() {
	if m == nil {
		return
	}
	m.presenceErrors.Inc()
}
