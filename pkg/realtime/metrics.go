package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes connection health to prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	state          *prometheus.GaugeVec
	connects       prometheus.Counter
	connectErrors  *prometheus.CounterVec
	events         *prometheus.CounterVec
	protocolErrors prometheus.Counter
	heartbeats     prometheus.Counter
	pongs          prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connects_total",
			Help:      "Successful connects, including reconnects.",
		}),
		connectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connect_errors_total",
			Help:      "Failed connect attempts by kind.",
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_received_total",
			Help:      "Events received from the server by name.",
		}, []string{"event"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "protocol_errors_total",
			Help:      "Malformed frames or payloads that were dropped.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "heartbeats_sent_total",
			Help:      "Pings written to the connection.",
		}),
		pongs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "pongs_received_total",
			Help:      "Pong replies received.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.state, m.connects, m.connectErrors, m.events, m.protocolErrors, m.heartbeats, m.pongs)
	}
	return m
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	for _, st := range States {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) connectFailed(err error) {
	if m == nil {
		return
	}
	kind := "transport"
	if IsAuthError(err) {
		kind = "auth"
	}
	m.connectErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) received(name EventName) {
	if m == nil {
		return
	}
	if name == EventPong {
		m.pongs.Inc()
	}
	if isDomain(name) || name == EventPong {
		m.events.WithLabelValues(string(name)).Inc()
		return
	}
	// Keep label cardinality bounded for unknown server events
	m.events.WithLabelValues("other").Inc()
}

func (m *Metrics) protocolError() {
	if m != nil {
		m.protocolErrors.Inc()
	}
}

func (m *Metrics) heartbeat() {
	if m != nil {
		m.heartbeats.Inc()
	}
}
