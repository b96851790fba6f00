// Package registry implements the connection manager that owns the set of
// active devices, indexes them by socket address and by hardware identity,
// and supports session adoption and read-only enumeration for outside
// readers.
//
// A dual-indexed map pair guarded by a single sync.RWMutex, with a
// read-only Snapshot view so callers outside the event loop (the
// introspection HTTP handler, the CLI) never touch the live,
// mutex-guarded *Device pointers.
//
// registry imports tracker (for the Tracker type stored per sensor), but
// tracker never imports registry back — it only depends on a small local
// DeviceTrackers interface — so this stays a one-way dependency.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/owotrack/owotrackd/internal/tracker"
)

// Protocol identifies which owoTrack-lineage wire dialect a device speaks.
type Protocol int

// Protocol values.
const (
	ProtocolSlimeVRRaw Protocol = iota
	ProtocolOwoLegacy
)

// String renders the protocol for logs and the introspection API.
func (p Protocol) String() string {
	if p == ProtocolOwoLegacy {
		return "OWO_LEGACY"
	}
	return "SLIMEVR_RAW"
}

// Device is the per-device mutable state record. Every field here is only
// ever mutated from the event-loop goroutine; readers outside that
// goroutine must go through Registry.Snapshot.
type Device struct {
	// HardwareID is immutable for the life of the record; it is the
	// session-restoration key.
	HardwareID string

	Address          string
	DescriptiveName  string
	Name             string
	Protocol         Protocol
	FirmwareBuild    int32
	FirmwareFeatures uint32
	BoardType        int32
	McuType          int32

	LastPacketTimeMs     int64
	LastPacketNumber     int64
	LastPingPacketID     int32
	LastPingPacketTimeMs int64
	TimedOut             bool

	LastSerialUpdateMs int64
	SerialBuffer       string

	Trackers map[int32]tracker.Tracker

	// connIdx is the stable insertion-order index used only for diagnostics
	// and log messages.
	connIdx int
}

// Registry is the connection manager: it owns every known Device, indexed
// both by socket address and by hardware identity.
type Registry struct {
	mu sync.RWMutex

	// order preserves insertion order; each Device's connIdx is its stable
	// numeric connection id, its index at insertion time.
	order []*Device

	byAddress    map[string]*Device
	byHardwareID map[string]*Device

	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		byAddress:    make(map[string]*Device),
		byHardwareID: make(map[string]*Device),
		logger:       logger.With(slog.String("component", "registry")),
	}
}

// LookupByAddress returns the device currently mapped to addr in O(1), or
// nil if none exists.
func (r *Registry) LookupByAddress(addr string) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddress[addr]
}

// HandshakeInfo carries the fields FindOrAdopt needs from a parsed
// Handshake packet, decoupling registry from the protocol package.
type HandshakeInfo struct {
	Mac            string
	FirmwareString string
	FirmwareBuild  int32
	BoardType      int32
	McuType        int32
}

// FindOrAdopt looks up or creates the device for a handshake, applying the
// handshake's fields either way. Key is handshake.Mac if non-empty, else
// peerIP. Returns the device and whether an existing record was adopted
// (true) versus newly created (false).
func (r *Registry) FindOrAdopt(hs HandshakeInfo, peerAddr, peerIP string) (*Device, bool) {
	key := hs.Mac
	if key == "" {
		key = peerIP
		r.logger.Warn("handshake without MAC, session restoration keyed on IP",
			slog.String("peer_ip", peerIP))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.byHardwareID[key]; ok {
		delete(r.byAddress, d.Address)
		r.applyHandshake(d, hs, peerAddr, peerIP)
		r.byAddress[d.Address] = d
		return d, true
	}

	d := &Device{
		HardwareID: key,
		BoardType:  hs.BoardType,
		McuType:    hs.McuType,
		Trackers:   make(map[int32]tracker.Tracker),
		connIdx:    len(r.order),
	}
	r.applyHandshake(d, hs, peerAddr, peerIP)

	r.order = append(r.order, d)
	r.byHardwareID[key] = d
	r.byAddress[d.Address] = d

	return d, false
}

// applyHandshake mutates d with the fields carried by a handshake. Called
// with the registry mutex already held, both for adoption and for first
// creation.
func (r *Registry) applyHandshake(d *Device, hs HandshakeInfo, peerAddr, peerIP string) {
	d.Address = peerAddr
	d.DescriptiveName = "udp:/" + peerIP // single slash intentional, matches reference firmware display.

	if hs.FirmwareString == "" {
		d.Protocol = ProtocolOwoLegacy
	} else {
		d.Protocol = ProtocolSlimeVRRaw
	}
	d.FirmwareBuild = hs.FirmwareBuild

	if hs.Mac != "" {
		d.Name = "udp://" + hs.Mac
	} else {
		d.Name = d.DescriptiveName
	}

	d.FirmwareFeatures = 0
	d.LastPacketNumber = 0
}

// Update runs fn against d under the registry's write lock. Every mutation
// of a Device's fields (including its Trackers map) must go through this
// method: Snapshot and HasAnySensors read those same fields under RLock,
// and an unsynchronized map write racing a snapshot read is undefined in
// Go even though the event loop is the only writer.
func (r *Registry) Update(d *Device, fn func(*Device)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(d)
}

// HasAnySensors reports whether at least one device has a non-empty
// Trackers map. Used to gate discovery broadcasts in the event loop.
func (r *Registry) HasAnySensors() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.order {
		if len(d.Trackers) > 0 {
			return true
		}
	}
	return false
}

// ForEach iterates devices in insertion order under a read lock. f must
// not call back into the Registry.
func (r *Registry) ForEach(f func(*Device)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.order {
		f(d)
	}
}

// Devices returns a copy of the insertion-order device-pointer slice, for
// callers (the event loop's keepalive sweep) that need to mutate each
// device via Update afterward — ForEach holds RLock for its whole
// iteration, and RWMutex is not reentrant, so mutating from inside a
// ForEach callback would deadlock.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, len(r.order))
	copy(out, r.order)
	return out
}

// ConnectionIndex returns d's stable insertion-order index, for
// diagnostics only.
func (r *Registry) ConnectionIndex(d *Device) int {
	return d.connIdx
}

// DeviceSnapshot is a read-only, lock-free copy of a Device's fields,
// returned by Snapshot for consumers outside the event loop: the
// introspection HTTP handler, the CLI, the TUI monitor.
type DeviceSnapshot struct {
	ConnectionIndex  int
	HardwareID       string
	Address          string
	Name             string
	DescriptiveName  string
	Protocol         string
	FirmwareBuild    int32
	BoardType        int32
	McuType          int32
	TrackerCount     int
	TimedOut         bool
	LastPacketAgeMs  int64
}

// Snapshot returns a consistent, copied view of every device in insertion
// order. now is the caller's clock reading, used to compute
// LastPacketAgeMs without re-entering the mutex per device.
func (r *Registry) Snapshot(nowMs int64) []DeviceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DeviceSnapshot, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, DeviceSnapshot{
			ConnectionIndex: d.connIdx,
			HardwareID:      d.HardwareID,
			Address:         d.Address,
			Name:            d.Name,
			DescriptiveName: d.DescriptiveName,
			Protocol:        d.Protocol.String(),
			FirmwareBuild:   d.FirmwareBuild,
			BoardType:       d.BoardType,
			McuType:         d.McuType,
			TrackerCount:    len(d.Trackers),
			TimedOut:        d.TimedOut,
			LastPacketAgeMs: nowMs - d.LastPacketTimeMs,
		})
	}
	return out
}

// NowMs is a small helper shared by the event loop and HTTP handlers so
// both compute "now" the same way.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
