// Package metricsx collects the daemon's operational metrics with
// github.com/VictoriaMetrics/metrics, mirroring the lazily-initialized
// metric set pattern used throughout r2northstar/atlas's pkg/api/api0.
package metricsx

import (
	"io"
	"sync"

	"github.com/VictoriaMetrics/metrics"

	"github.com/qrtr-project/qrtr-ns/registry"
)

// Metrics holds every counter/gauge the daemon reports. A nil *Metrics is
// valid everywhere it is used (every method below is a no-op on nil),
// so callers that don't want metrics never need to special-case it.
type Metrics struct {
	set *metrics.Set

	packetsInTotal  func(cmd string) *metrics.Counter
	packetsOutTotal func(cmd string) *metrics.Counter
	decodeErrors    *metrics.Counter
	sendErrors      *metrics.Counter

	once sync.Once
}

// New creates an initialized Metrics bound to registry and subs for its
// gauges: registry/subscription size is reported live rather than
// tracked incrementally, since both structures already expose size
// queries (Subscriptions.Len is O(1); Registry.Stats walks every node).
func New(reg *registry.Registry, subs *registry.Subscriptions) *Metrics {
	m := &Metrics{set: metrics.NewSet()}
	m.once.Do(func() {
		m.packetsInTotal = func(cmd string) *metrics.Counter {
			return m.set.GetOrCreateCounter(`qrtr_ns_packets_in_total{cmd="` + cmd + `"}`)
		}
		m.packetsOutTotal = func(cmd string) *metrics.Counter {
			return m.set.GetOrCreateCounter(`qrtr_ns_packets_out_total{cmd="` + cmd + `"}`)
		}
		m.decodeErrors = m.set.NewCounter(`qrtr_ns_decode_errors_total`)
		m.sendErrors = m.set.NewCounter(`qrtr_ns_send_errors_total`)

		m.set.NewGauge(`qrtr_ns_registry_nodes`, func() float64 {
			nodes, _ := reg.Stats()
			return float64(nodes)
		})
		m.set.NewGauge(`qrtr_ns_registry_servers`, func() float64 {
			_, servers := reg.Stats()
			return float64(servers)
		})
		m.set.NewGauge(`qrtr_ns_subscriptions`, func() float64 {
			return float64(subs.Len())
		})
	})
	return m
}

// PacketIn increments the inbound packet counter for cmd.
func (m *Metrics) PacketIn(cmd string) {
	if m == nil {
		return
	}
	m.packetsInTotal(cmd).Inc()
}

// PacketOut increments the outbound packet counter for cmd.
func (m *Metrics) PacketOut(cmd string) {
	if m == nil {
		return
	}
	m.packetsOutTotal(cmd).Inc()
}

// DecodeError increments the decode-failure counter.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// SendError increments the send-failure counter.
func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

// WritePrometheus writes every metric in Prometheus text exposition
// format, for an HTTP handler to serve.
func (m *Metrics) WritePrometheus(w io.Writer) {
	if m == nil {
		return
	}
	m.set.WritePrometheus(w)
}
