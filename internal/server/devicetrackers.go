package server

import (
	"github.com/owotrack/owotrackd/internal/registry"
	"github.com/owotrack/owotrackd/internal/tracker"
)

// deviceTrackers adapts a *registry.Device to tracker.DeviceTrackers.
// registry.Device exposes HardwareID as a field, not a method, so it
// cannot satisfy the interface directly — this is the small bridge type
// that lets the Provisioner (internal/tracker) operate on real registry
// devices without tracker importing registry.
type deviceTrackers struct {
	d *registry.Device
}

func (a deviceTrackers) HardwareID() string  { return a.d.HardwareID }
func (a deviceTrackers) DisplayName() string { return a.d.Name }

func (a deviceTrackers) Tracker(sensorID int32) (tracker.Tracker, bool) {
	t, ok := a.d.Trackers[sensorID]
	return t, ok
}

func (a deviceTrackers) SetTracker(sensorID int32, t tracker.Tracker) {
	a.d.Trackers[sensorID] = t
}

var _ tracker.DeviceTrackers = deviceTrackers{}
