package tracker_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/owotrack/owotrackd/internal/protocol"
	"github.com/owotrack/owotrackd/internal/tracker"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice is a minimal tracker.DeviceTrackers for provisioner tests,
// standing in for *registry.Device so these tests need no registry.
type fakeDevice struct {
	hardwareID string
	name       string
	trackers   map[int32]tracker.Tracker
}

func newFakeDevice(hardwareID, name string) *fakeDevice {
	return &fakeDevice{hardwareID: hardwareID, name: name, trackers: make(map[int32]tracker.Tracker)}
}

func (d *fakeDevice) HardwareID() string  { return d.hardwareID }
func (d *fakeDevice) DisplayName() string { return d.name }

func (d *fakeDevice) Tracker(sensorID int32) (tracker.Tracker, bool) {
	t, ok := d.trackers[sensorID]
	return t, ok
}

func (d *fakeDevice) SetTracker(sensorID int32, t tracker.Tracker) {
	d.trackers[sensorID] = t
}

func TestProvisionCreatesTrackerOnFirstContact(t *testing.T) {
	t.Parallel()

	host := tracker.NewMemoryHost(newTestLogger())
	p := tracker.NewProvisioner(host, newTestLogger())
	d := newFakeDevice("AA:BB:CC:DD:EE:FF", "udp://AA:BB:CC:DD:EE:FF")

	p.Provision(d, 0, 5, 1)

	if _, ok := d.Tracker(0); !ok {
		t.Fatal("Provision did not store a tracker for sensor 0")
	}
	if got := len(host.Trackers()); got != 1 {
		t.Fatalf("got %d host trackers, want 1", got)
	}
}

func TestProvisionUpdatesStatusOnRepeatContact(t *testing.T) {
	t.Parallel()

	host := tracker.NewMemoryHost(newTestLogger())
	p := tracker.NewProvisioner(host, newTestLogger())
	d := newFakeDevice("AA:BB:CC:DD:EE:FF", "udp://AA:BB:CC:DD:EE:FF")

	p.Provision(d, 0, 5, 1)
	p.Provision(d, 0, 5, 0) // raw status 0 decodes to StatusDisconnected

	if got := len(host.Trackers()); got != 1 {
		t.Fatalf("got %d host trackers after repeat provision, want still 1 (no duplicate)", got)
	}
	tr, _ := d.Tracker(0)
	if got := tr.Status(); got != tracker.StatusDisconnected {
		t.Fatalf("got status %v after repeat provision with raw status 0, want StatusDisconnected", got)
	}
}

func TestDescriptionHashIsStableAndAtLeastFiveCharacters(t *testing.T) {
	t.Parallel()

	a := tracker.DescriptionHash("AA:BB:CC:DD:EE:FF")
	b := tracker.DescriptionHash("AA:BB:CC:DD:EE:FF")
	if a != b {
		t.Fatalf("DescriptionHash not stable: got %q then %q", a, b)
	}
	if len(a) < 5 {
		t.Fatalf("DescriptionHash(%q) = %q, want at least 5 characters", "AA:BB:CC:DD:EE:FF", a)
	}

	other := tracker.DescriptionHash("11:22:33:44:55:66")
	if other == a {
		t.Fatalf("DescriptionHash collided for distinct hardware ids: both %q", a)
	}
}

func TestMemoryHostNextLocalTrackerIDIsUnique(t *testing.T) {
	t.Parallel()

	host := tracker.NewMemoryHost(newTestLogger())
	seen := make(map[string]bool)
	for range 32 {
		id := host.NextLocalTrackerID()
		if seen[id] {
			t.Fatalf("NextLocalTrackerID returned duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestResetHandlerDispatchesWithoutPanicking(t *testing.T) {
	t.Parallel()

	host := tracker.NewMemoryHost(newTestLogger())
	rh := host.ResetHandler()

	rh.SendStarted("full")
	rh.ResetTrackersFull("test")
	rh.ResetTrackersYaw("test")
	rh.ResetTrackersMounting("test")
}

func TestDecodeStatusRoundTripsThroughSetStatus(t *testing.T) {
	t.Parallel()

	host := tracker.NewMemoryHost(newTestLogger())
	p := tracker.NewProvisioner(host, newTestLogger())
	d := newFakeDevice("m1", "udp://m1")

	p.Provision(d, 0, 1, 0)

	tr, ok := d.Tracker(0)
	if !ok {
		t.Fatal("Provision did not store a tracker")
	}
	if got := tr.Status(); got != protocol.DecodeStatus(0) {
		t.Fatalf("got status %v after provisioning with raw status 0, want %v", got, protocol.DecodeStatus(0))
	}
	tr.SetStatus(protocol.StatusError)
	tr.SetRotation(protocol.Quaternion{W: 1})
	if got := tr.Status(); got != protocol.StatusError {
		t.Fatalf("got status %v after SetStatus(StatusError), want StatusError", got)
	}
}
