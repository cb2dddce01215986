package ping

import "github.com/prometheus/client_golang/prometheus"

const namespace = "secubot"

// Metrics holds the worker's collectors. They are not registered anywhere
// until the caller passes Collectors to a registry.
type Metrics struct {
	ActiveCannons prometheus.Gauge
	Announces     prometheus.Counter
	Expired       prometheus.Counter
	SendFailures  prometheus.Counter
	Messages      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ActiveCannons: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ping",
			Name:      "active_cannons",
			Help:      "Channels with a running ping cannon.",
		}),
		Announces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ping",
			Name:      "announces_total",
			Help:      "Announce messages sent.",
		}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ping",
			Name:      "expired_total",
			Help:      "Cannons removed by timeout.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ping",
			Name:      "send_failures_total",
			Help:      "Outbound messages that failed to send.",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ping",
			Name:      "messages_applied_total",
			Help:      "Control messages applied by the worker, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.ActiveCannons, m.Announces, m.Expired, m.SendFailures, m.Messages}
}

func messageKind(msg Message) string {
	switch msg.(type) {
	case Commence:
		return "commence"
	case Remove:
		return "remove"
	case Stop:
		return "stop"
	}
	return "unknown"
}
