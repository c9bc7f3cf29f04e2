package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xordht"

// Metrics holds the node's Prometheus collectors on a private registry so
// that several nodes can live in one process. All helper methods are safe
// to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	datagramsReceived *prometheus.CounterVec
	datagramsDropped  *prometheus.CounterVec
	datagramsSent     *prometheus.CounterVec
	sendErrors        prometheus.Counter

	lookupsStarted   *prometheus.CounterVec
	lookupsCompleted *prometheus.CounterVec
	requestTimeouts  prometheus.Counter
	evictions        *prometheus.CounterVec

	routingContacts prometheus.Gauge
	activeLookups   prometheus.Gauge
	outstanding     prometheus.Gauge
	storedValues    prometheus.Gauge

	clientRequests *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		datagramsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "datagrams_received_total",
			Help:      "Decoded peer datagrams by message type.",
		}, []string{"type"}),
		datagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "datagrams_dropped_total",
			Help:      "Inbound datagrams discarded before processing.",
		}, []string{"reason"}),
		datagramsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "datagrams_sent_total",
			Help:      "Outbound peer datagrams by message type.",
		}, []string{"type"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "send_errors_total",
			Help:      "Datagram sends that failed.",
		}),
		lookupsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "started_total",
			Help:      "Iterative lookups started, by intent.",
		}, []string{"intent"}),
		lookupsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "completed_total",
			Help:      "Iterative lookups removed from the active set, by outcome.",
		}, []string{"outcome"}),
		requestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "request_timeouts_total",
			Help:      "Outstanding lookup requests that expired.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "evictions_total",
			Help:      "Eviction candidates by outcome.",
		}, []string{"outcome"}),
		routingContacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "contacts",
			Help:      "Contacts currently held in the routing table.",
		}),
		activeLookups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "active",
			Help:      "Lookups currently in progress.",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "outstanding_requests",
			Help:      "FIND requests awaiting a response.",
		}),
		storedValues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "values",
			Help:      "Values held in the local store.",
		}),
		clientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "client_requests_total",
			Help:      "Client API requests by operation and result.",
		}, []string{"op", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.datagramsReceived,
		m.datagramsDropped,
		m.datagramsSent,
		m.sendErrors,
		m.lookupsStarted,
		m.lookupsCompleted,
		m.requestTimeouts,
		m.evictions,
		m.routingContacts,
		m.activeLookups,
		m.outstanding,
		m.storedValues,
		m.clientRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Received(msgType string) {
	if m == nil {
		return
	}
	m.datagramsReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.datagramsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Sent(msgType string) {
	if m == nil {
		return
	}
	m.datagramsSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *Metrics) LookupStarted(intent string) {
	if m == nil {
		return
	}
	m.lookupsStarted.WithLabelValues(intent).Inc()
}

func (m *Metrics) LookupCompleted(outcome string) {
	if m == nil {
		return
	}
	m.lookupsCompleted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RequestTimedOut() {
	if m == nil {
		return
	}
	m.requestTimeouts.Inc()
}

func (m *Metrics) Eviction(outcome string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetRoutingContacts(n int) {
	if m == nil {
		return
	}
	m.routingContacts.Set(float64(n))
}

func (m *Metrics) SetLookupState(active, outstanding int) {
	if m == nil {
		return
	}
	m.activeLookups.Set(float64(active))
	m.outstanding.Set(float64(outstanding))
}

func (m *Metrics) SetStoredValues(n int) {
	if m == nil {
		return
	}
	m.storedValues.Set(float64(n))
}

func (m *Metrics) ClientRequest(op, result string) {
	if m == nil {
		return
	}
	m.clientRequests.WithLabelValues(op, result).Inc()
}
