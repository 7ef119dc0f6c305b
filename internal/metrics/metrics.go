// Package metrics exposes monitor counters in the Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promptwatch"

// Metrics holds the collectors updated by running monitors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionsOpened  prometheus.Counter
	sessionsClosed  prometheus.Counter
	activeSessions  *prometheus.GaugeVec
	scans           *prometheus.CounterVec
	captures        *prometheus.CounterVec
	conversations   *prometheus.CounterVec
	monitorsRunning prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		sessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_opened_total",
			Help: "Terminal sessions discovered.",
		}),
		sessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_closed_total",
			Help: "Terminal sessions that disappeared.",
		}),
		activeSessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Sessions currently tracked, per monitor.",
		}, []string{"monitor"}),
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "scans_total",
			Help: "Session scans by result.",
		}, []string{"result"}),
		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "captures_total",
			Help: "Device capture attempts by method and status.",
		}, []string{"method", "status"}),
		conversations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "conversations_total",
			Help: "Extracted conversations by store outcome.",
		}, []string{"outcome"}),
		monitorsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "monitors_running",
			Help: "Monitor instances in the active state.",
		}),
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
}

// SetActiveSessions records the tracked session count of one monitor.
func (m *Metrics) SetActiveSessions(monitorID string, n int) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(monitorID).Set(float64(n))
}

// ForgetMonitor removes per-monitor series.
func (m *Metrics) ForgetMonitor(monitorID string) {
	if m == nil {
		return
	}
	m.activeSessions.DeleteLabelValues(monitorID)
}

// Scan counts one scan; ok is false when listing failed.
func (m *Metrics) Scan(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.scans.WithLabelValues(result).Inc()
}

func (m *Metrics) Capture(method, status string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(method, status).Inc()
}

// Conversation counts one store attempt by outcome name.
func (m *Metrics) Conversation(outcome string) {
	if m == nil {
		return
	}
	m.conversations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MonitorStarted() {
	if m == nil {
		return
	}
	m.monitorsRunning.Inc()
}

func (m *Metrics) MonitorStopped() {
	if m == nil {
		return
	}
	m.monitorsRunning.Dec()
}
