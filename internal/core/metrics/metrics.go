// Package metrics holds the Prometheus collectors of a running device.
//
// A nil *Metrics is valid and records nothing, so components take one
// optionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "microproto"

// Metrics groups every collector.
type Metrics struct {
	saves     *prometheus.CounterVec
	loads     *prometheus.CounterVec
	flushes   prometheus.Counter
	dirty     prometheus.Gauge
	changes   prometheus.Counter
	frames    *prometheus.CounterVec
	clients   prometheus.Gauge
	rejected  *prometheus.CounterVec
	resources *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "saves_total",
			Help:      "Property saves by result.",
		}, []string{"result"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "loads_total",
			Help:      "Property loads by result (ok, missing, error).",
		}, []string{"result"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "flushes_total",
			Help:      "Change batches handed to flush listeners.",
		}),
		dirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "dirty_properties",
			Help:      "Persistent properties waiting for their debounce window.",
		}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "changes_total",
			Help:      "Effective property changes.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Protocol messages by direction and opcode.",
		}, []string{"direction", "opcode"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "clients",
			Help:      "Connected protocol sessions.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "rejected_writes_total",
			Help:      "Remote property writes rejected, by error code.",
		}, []string{"code"}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "operations_total",
			Help:      "Resource table operations by kind.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.saves, m.loads, m.flushes, m.dirty, m.changes, m.frames, m.clients, m.rejected, m.resources)
	}
	return m
}

func (m *Metrics) Saved(ok bool) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(result(ok)).Inc()
}

// Loaded records a load; result is "ok", "missing" or "error".
func (m *Metrics) Loaded(result string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(result).Inc()
}

func (m *Metrics) Flushed() {
	if m == nil {
		return
	}
	m.flushes.Inc()
}

func (m *Metrics) SetDirty(n int) {
	if m == nil {
		return
	}
	m.dirty.Set(float64(n))
}

func (m *Metrics) Changed() {
	if m == nil {
		return
	}
	m.changes.Inc()
}

// Frame records one protocol message; direction is "in" or "out".
func (m *Metrics) Frame(direction, opcode string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction, opcode).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.clients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.clients.Dec()
}

func (m *Metrics) Rejected(code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(code).Inc()
}

func (m *Metrics) Resource(op string) {
	if m == nil {
		return
	}
	m.resources.WithLabelValues(op).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
