package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's prometheus collectors. A nil *Metrics is valid
// and turns every recording call into a no-op, which keeps tests quiet.
type Metrics struct {
	connectionsOpened     prometheus.Counter
	connectionsSuperseded prometheus.Counter
	activeConnections     prometheus.Gauge
	clientsReserved       prometheus.Gauge
	messagesRelayed       prometheus.Counter
	sendsRejected         *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		connectionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_opened_total",
			Help: "WebSocket connections accepted and registered.",
		}),
		connectionsSuperseded: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_superseded_total",
			Help: "Connections closed because a newer connection claimed the same name.",
		}),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Currently open WebSocket connections.",
		}),
		clientsReserved: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_clients_reserved",
			Help: "Names currently reserved in the registry.",
		}),
		messagesRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "Messages forwarded to a recipient connection.",
		}),
		sendsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_sends_rejected_total",
			Help: "Send requests rejected, by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connectionsOpened.Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) connSuperseded() {
	if m == nil {
		return
	}
	m.connectionsSuperseded.Inc()
}

func (m *Metrics) clientReserved() {
	if m == nil {
		return
	}
	m.clientsReserved.Inc()
}

func (m *Metrics) clientReleased() {
	if m == nil {
		return
	}
	m.clientsReserved.Dec()
}

func (m *Metrics) messageRelayed() {
	if m == nil {
		return
	}
	m.messagesRelayed.Inc()
}

func (m *Metrics) sendRejected(reason string) {
	if m == nil {
		return
	}
	m.sendsRejected.WithLabelValues(reason).Inc()
}
