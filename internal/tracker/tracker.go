// Package tracker declares the external collaborator interfaces (Tracker,
// Host, ResetHandler) and provides a reference in-memory Host
// implementation, MemoryHost, used by cmd/owotrackd and by tests. A
// production deployment would swap MemoryHost for a real downstream
// motion-capture application; that application stays out of scope.
package tracker

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/owotrack/owotrackd/internal/protocol"
)

// Status mirrors protocol.Status so callers of this package don't need to
// import internal/protocol just to read a tracker's state.
type Status = protocol.Status

// Status values re-exported for convenience.
const (
	StatusOK           = protocol.StatusOK
	StatusDisconnected = protocol.StatusDisconnected
	StatusError        = protocol.StatusError
)

// Capabilities describes what a provisioned Tracker supports, fixed at
// construction.
type Capabilities struct {
	Rotation      bool
	Acceleration  bool
	Filtering     bool
	NeedsReset    bool
	NeedsMounting bool
	UserEditable  bool
	ImuType       int32
}

// Tracker is the pose/state sink: one handle per (device, sensorId).
type Tracker interface {
	SetRotation(q protocol.Quaternion)
	SetAcceleration(v protocol.Vec3)
	SetBattery(voltage, levelPercent float32)
	SetSignalStrength(strength int32)
	SetTemperature(celsius float32)
	SetPing(ms int64)
	SetStatus(status Status)
	Status() Status
	DataTick()
}

// ResetHandler dispatches the three reset variants.
type ResetHandler interface {
	SendStarted(resetType string)
	ResetTrackersFull(source string)
	ResetTrackersYaw(source string)
	ResetTrackersMounting(source string)
}

// Host is the enclosing device manager: it mints globally unique local
// tracker ids and receives newly provisioned trackers.
type Host interface {
	NextLocalTrackerID() string
	AddDevice(name, description string, tracker Tracker, caps Capabilities)
	ResetHandler() ResetHandler
}

// descHashStart and descHashEnd bound the slice of SHA-256(hardwareId)
// rendered as the tracker's description.
const (
	descHashStart = 3
	descHashEnd   = 7
)

// DescriptionHash renders a stable description: SHA-256(hardwareId)
// bytes [3:7] rendered as the host-string of a 4-byte IP-shaped value. The
// result is dotted-quad text of 7 to 15 characters, not a fixed length.
func DescriptionHash(hardwareID string) string {
	sum := sha256.Sum256([]byte(hardwareID))
	return net.IP(sum[descHashStart:descHashEnd]).String()
}

// Provisioner creates a tracker on first contact for a (device, sensorId)
// pair and updates an existing one's status thereafter.
type Provisioner struct {
	host   Host
	logger *slog.Logger
}

// NewProvisioner creates a Provisioner forwarding newly created trackers
// to host.
func NewProvisioner(host Host, logger *slog.Logger) *Provisioner {
	return &Provisioner{host: host, logger: logger.With(slog.String("component", "tracker.provisioner"))}
}

// DeviceTrackers is the narrow slice of registry.Device the Provisioner
// needs: a hardware id, a display name, and a place to store the
// provisioned Tracker. Declared here (not imported from internal/registry)
// so tracker and registry don't import each other.
type DeviceTrackers interface {
	HardwareID() string
	DisplayName() string
	Tracker(sensorID int32) (Tracker, bool)
	SetTracker(sensorID int32, t Tracker)
}

// Provision creates a tracker on first contact for (device, sensorId), or
// updates an existing one's status.
func (p *Provisioner) Provision(d DeviceTrackers, sensorID, sensorType, rawStatus int32) {
	if existing, ok := d.Tracker(sensorID); ok {
		existing.SetStatus(protocol.DecodeStatus(rawStatus))
		return
	}

	t := newMemoryTracker()
	t.SetStatus(protocol.DecodeStatus(rawStatus))

	caps := Capabilities{
		Rotation:      true,
		Acceleration:  true,
		Filtering:     true,
		NeedsReset:    true,
		NeedsMounting: true,
		UserEditable:  true,
		ImuType:       sensorType,
	}

	name := fmt.Sprintf("%s/%d", d.DisplayName(), sensorID)
	description := DescriptionHash(d.HardwareID())

	d.SetTracker(sensorID, t)
	p.host.AddDevice(name, description, t, caps)

	p.logger.Debug("provisioned tracker",
		slog.String("device", d.HardwareID()),
		slog.Int("sensor_id", int(sensorID)))
}

// -------------------------------------------------------------------------
// MemoryHost — reference Host implementation
// -------------------------------------------------------------------------

// MemoryHost is a reference, in-memory Host implementation: it keeps every
// added tracker in a map keyed by a fresh UUID and exposes a no-op
// ResetHandler that only logs. Production deployments replace this with
// the real downstream application.
type MemoryHost struct {
	mu       sync.Mutex
	trackers map[string]Tracker
	reset    *loggingResetHandler
	logger   *slog.Logger
}

// NewMemoryHost creates a MemoryHost.
func NewMemoryHost(logger *slog.Logger) *MemoryHost {
	l := logger.With(slog.String("component", "tracker.host"))
	return &MemoryHost{
		trackers: make(map[string]Tracker),
		reset:    &loggingResetHandler{logger: l},
		logger:   l,
	}
}

// NextLocalTrackerID returns a fresh globally unique id.
func (h *MemoryHost) NextLocalTrackerID() string {
	return uuid.NewString()
}

// AddDevice stores the tracker and logs its arrival once.
func (h *MemoryHost) AddDevice(name, description string, t Tracker, caps Capabilities) {
	id := h.NextLocalTrackerID()

	h.mu.Lock()
	h.trackers[id] = t
	h.mu.Unlock()

	h.logger.Info("tracker added",
		slog.String("id", id),
		slog.String("name", name),
		slog.String("description", description),
		slog.Int("imu_type", int(caps.ImuType)))
}

// ResetHandler returns the Host's reset dispatch target.
func (h *MemoryHost) ResetHandler() ResetHandler {
	return h.reset
}

// Trackers returns a snapshot of the currently known tracker ids, for
// tests.
func (h *MemoryHost) Trackers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.trackers))
	for id := range h.trackers {
		ids = append(ids, id)
	}
	return ids
}

type loggingResetHandler struct {
	logger *slog.Logger
}

func (r *loggingResetHandler) SendStarted(resetType string) {
	r.logger.Info("reset started", slog.String("type", resetType))
}

func (r *loggingResetHandler) ResetTrackersFull(source string) {
	r.logger.Info("resetTrackersFull", slog.String("source", source))
}

func (r *loggingResetHandler) ResetTrackersYaw(source string) {
	r.logger.Info("resetTrackersYaw", slog.String("source", source))
}

func (r *loggingResetHandler) ResetTrackersMounting(source string) {
	r.logger.Info("resetTrackersMounting", slog.String("source", source))
}

// -------------------------------------------------------------------------
// memoryTracker — reference Tracker implementation
// -------------------------------------------------------------------------

// memoryTracker is the Tracker half of MemoryHost: it just records the
// latest value set for each field, for tests and introspection.
type memoryTracker struct {
	mu           sync.Mutex
	rotation     protocol.Quaternion
	acceleration protocol.Vec3
	voltage      float32
	levelPercent float32
	signal       int32
	temperature  float32
	pingMs       int64
	status       Status
	ticks        int64
}

func newMemoryTracker() *memoryTracker {
	return &memoryTracker{status: StatusOK}
}

func (t *memoryTracker) SetRotation(q protocol.Quaternion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotation = q
}

func (t *memoryTracker) SetAcceleration(v protocol.Vec3) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acceleration = v
}

func (t *memoryTracker) SetBattery(voltage, levelPercent float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.voltage = voltage
	t.levelPercent = levelPercent
}

func (t *memoryTracker) SetSignalStrength(strength int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signal = strength
}

func (t *memoryTracker) SetTemperature(celsius float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.temperature = celsius
}

func (t *memoryTracker) SetPing(ms int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pingMs = ms
}

func (t *memoryTracker) SetStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

func (t *memoryTracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *memoryTracker) DataTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks++
}

// Snapshot returns a copy of the tracker's current state, for tests.
func (t *memoryTracker) Snapshot() (rotation protocol.Quaternion, accel protocol.Vec3, status Status, pingMs int64, ticks int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rotation, t.acceleration, t.status, t.pingMs, t.ticks
}
