package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Metrics holds the service collectors on a private registry.
// All methods are no-ops on a nil receiver.
type Metrics struct {
	reg           *prometheus.Registry
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	overdue       prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_transitions_total",
			Help: "Borrow lifecycle operations by operation and result.",
		}, []string{"op", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by event kind and result.",
		}, []string{"kind", "result"}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_overdue_records",
			Help: "In-progress borrow records due within the reminder horizon at the last scan.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.notifications,
		m.overdue,
	)
	return m
}

func (m *Metrics) Transition(op, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetOverdue(n int) {
	if m == nil {
		return
	}
	m.overdue.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
