// Package owotrackmetrics defines the Prometheus metrics exported by
// owotrackd: a single struct of exported *GaugeVec/*CounterVec fields
// registered once against a prometheus.Registerer, with small per-event
// Inc/Dec helper methods.
package owotrackmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "owotrackd"
	subsystem = "server"
)

// Label names for owotrackd metrics.
const (
	labelProtocol = "protocol"
	labelKind     = "kind"
	labelFrom     = "from_status"
	labelTo       = "to_status"
)

// -------------------------------------------------------------------------
// Collector — Prometheus owotrackd Metrics
// -------------------------------------------------------------------------

// Collector holds all owotrackd Prometheus metrics.
//
//   - Devices tracks currently registered devices.
//   - Packet counters track receive/send/drop volumes by kind.
//   - StatusTransitions counts tracker status changes for alerting.
//   - DiscoveryBroadcasts counts discovery packets sent.
type Collector struct {
	// Devices tracks the number of currently registered devices, labeled
	// by protocol.
	Devices *prometheus.GaugeVec

	// PacketsReceived counts datagrams successfully parsed, labeled by
	// packet kind.
	PacketsReceived *prometheus.CounterVec

	// PacketsSent counts datagrams written back to a device, labeled by
	// packet kind.
	PacketsSent *prometheus.CounterVec

	// PacketsDropped counts datagrams that failed to parse.
	PacketsDropped prometheus.Counter

	// StatusTransitions counts tracker status changes between the
	// DISCONNECTED/OK/ERROR states.
	StatusTransitions *prometheus.CounterVec

	// DiscoveryBroadcasts counts discovery packets sent while no sensors
	// are registered.
	DiscoveryBroadcasts prometheus.Counter
}

// NewCollector creates a Collector with all owotrackd metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Devices,
		c.PacketsReceived,
		c.PacketsSent,
		c.PacketsDropped,
		c.StatusTransitions,
		c.DiscoveryBroadcasts,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "devices",
			Help:      "Number of currently registered tracker devices.",
		}, []string{labelProtocol}),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total datagrams successfully parsed, by packet kind.",
		}, []string{labelKind}),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total datagrams written back to a device, by packet kind.",
		}, []string{labelKind}),

		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total datagrams dropped due to a parse error.",
		}),

		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_transitions_total",
			Help:      "Total tracker status transitions.",
		}, []string{labelFrom, labelTo}),

		DiscoveryBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "discovery_broadcasts_total",
			Help:      "Total discovery packets broadcast while no sensors were registered.",
		}),
	}
}

// -------------------------------------------------------------------------
// Device Lifecycle
// -------------------------------------------------------------------------

// SetDevices sets the devices gauge for the given protocol. Called after
// each registry sweep rather than incremented/decremented per event, since
// adoption can reuse an existing record without a net device-count change.
func (c *Collector) SetDevices(protocol string, count float64) {
	c.Devices.WithLabelValues(protocol).Set(count)
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsReceived increments the received-packets counter for kind.
func (c *Collector) IncPacketsReceived(kind string) {
	c.PacketsReceived.WithLabelValues(kind).Inc()
}

// IncPacketsSent increments the sent-packets counter for kind.
func (c *Collector) IncPacketsSent(kind string) {
	c.PacketsSent.WithLabelValues(kind).Inc()
}

// IncPacketsDropped increments the dropped-packets counter.
func (c *Collector) IncPacketsDropped() {
	c.PacketsDropped.Inc()
}

// -------------------------------------------------------------------------
// Status Transitions
// -------------------------------------------------------------------------

// RecordStatusTransition increments the status transition counter with the
// old and new status labels.
func (c *Collector) RecordStatusTransition(from, to string) {
	c.StatusTransitions.WithLabelValues(from, to).Inc()
}

// -------------------------------------------------------------------------
// Discovery
// -------------------------------------------------------------------------

// IncDiscoveryBroadcasts increments the discovery broadcast counter.
func (c *Collector) IncDiscoveryBroadcasts() {
	c.DiscoveryBroadcasts.Inc()
}
