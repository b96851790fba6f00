package owotrackmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	owotrackmetrics "github.com/owotrack/owotrackd/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := owotrackmetrics.NewCollector(reg)

	if c.Devices == nil {
		t.Error("Devices is nil")
	}
	if c.PacketsReceived == nil {
		t.Error("PacketsReceived is nil")
	}
	if c.PacketsSent == nil {
		t.Error("PacketsSent is nil")
	}
	if c.PacketsDropped == nil {
		t.Error("PacketsDropped is nil")
	}
	if c.StatusTransitions == nil {
		t.Error("StatusTransitions is nil")
	}
	if c.DiscoveryBroadcasts == nil {
		t.Error("DiscoveryBroadcasts is nil")
	}

	// Verify all metrics are registered by gathering them.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSetDevices(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := owotrackmetrics.NewCollector(reg)

	c.SetDevices("SLIMEVR_RAW", 2)

	val := gaugeValue(t, c.Devices, "SLIMEVR_RAW")
	if val != 2 {
		t.Errorf("Devices(SLIMEVR_RAW) = %v, want 2", val)
	}

	c.SetDevices("SLIMEVR_RAW", 1)
	val = gaugeValue(t, c.Devices, "SLIMEVR_RAW")
	if val != 1 {
		t.Errorf("Devices(SLIMEVR_RAW) after re-set = %v, want 1", val)
	}
}

func TestPacketCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := owotrackmetrics.NewCollector(reg)

	c.IncPacketsReceived("Handshake")
	c.IncPacketsReceived("Handshake")
	c.IncPacketsReceived("Handshake")

	if val := counterValue(t, c.PacketsReceived, "Handshake"); val != 3 {
		t.Errorf("PacketsReceived(Handshake) = %v, want 3", val)
	}

	c.IncPacketsSent("PingPong")

	if val := counterValue(t, c.PacketsSent, "PingPong"); val != 1 {
		t.Errorf("PacketsSent(PingPong) = %v, want 1", val)
	}

	c.IncPacketsDropped()
	c.IncPacketsDropped()

	m := &dto.Metric{}
	if err := c.PacketsDropped.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("PacketsDropped = %v, want 2", got)
	}
}

func TestStatusTransition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := owotrackmetrics.NewCollector(reg)

	c.RecordStatusTransition("OK", "DISCONNECTED")
	c.RecordStatusTransition("OK", "DISCONNECTED")
	c.RecordStatusTransition("DISCONNECTED", "OK")

	if val := counterValue(t, c.StatusTransitions, "OK", "DISCONNECTED"); val != 2 {
		t.Errorf("StatusTransitions(OK->DISCONNECTED) = %v, want 2", val)
	}
	if val := counterValue(t, c.StatusTransitions, "DISCONNECTED", "OK"); val != 1 {
		t.Errorf("StatusTransitions(DISCONNECTED->OK) = %v, want 1", val)
	}
}

func TestDiscoveryBroadcasts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := owotrackmetrics.NewCollector(reg)

	c.IncDiscoveryBroadcasts()
	c.IncDiscoveryBroadcasts()

	m := &dto.Metric{}
	if err := c.DiscoveryBroadcasts.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("DiscoveryBroadcasts = %v, want 2", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
