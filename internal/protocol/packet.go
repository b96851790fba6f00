// Package protocol implements the owoTrack-lineage UDP wire codec: packet
// kind constants, typed packet variants, and the parse/write pair that
// satisfies server.ProtocolCodec. The core event loop and dispatcher reach
// the codec only through the ProtocolCodec interface, never the concrete
// Codec type; they do use this package's packet value types (Packet, Kind
// and the payload structs) directly.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Kind identifies a packet variant by its leading wire-format integer
// (first 4 bytes of the payload, big-endian).
type Kind int32

// Packet kinds handled by the dispatcher.
const (
	KindHeartbeatIn      Kind = 0
	KindHeartbeatOut     Kind = 1
	KindRotationLegacy   Kind = 2
	KindHandshake        Kind = 3
	KindAcceleration     Kind = 4
	KindPingPong         Kind = 10
	KindSerial           Kind = 11
	KindBatteryLevel     Kind = 12
	KindTap              Kind = 13
	KindError            Kind = 14
	KindSensorInfo       Kind = 15
	KindRotationData     Kind = 17
	KindMagAccuracy      Kind = 18
	KindSignalStrength   Kind = 19
	KindTemperature      Kind = 20
	KindUserAction       Kind = 21
	KindFeatureFlags     Kind = 22
	KindProtocolChange   Kind = 200
)

// kindNames gives String() a human-readable name for log fields.
var kindNames = map[Kind]string{
	KindHeartbeatIn:    "HeartbeatIn",
	KindHeartbeatOut:   "HeartbeatOut",
	KindRotationLegacy: "RotationLegacy",
	KindHandshake:      "Handshake",
	KindAcceleration:   "Acceleration",
	KindPingPong:       "PingPong",
	KindSerial:         "Serial",
	KindBatteryLevel:   "BatteryLevel",
	KindTap:            "Tap",
	KindError:          "Error",
	KindSensorInfo:     "SensorInfo",
	KindRotationData:   "RotationData",
	KindMagAccuracy:    "MagnetometerAccuracy",
	KindSignalStrength: "SignalStrength",
	KindTemperature:    "Temperature",
	KindUserAction:     "UserAction",
	KindFeatureFlags:   "FeatureFlags",
	KindProtocolChange: "ProtocolChange",
}

// String returns the human-readable packet kind name, or a numeric
// fallback for unrecognized kinds.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int32(k))
}

// RotationDataType distinguishes RotationData(17) sub-types.
type RotationDataType int32

// RotationData sub-types.
const (
	DataTypeNormal     RotationDataType = 1
	DataTypeCorrection RotationDataType = 2
)

// UserActionType distinguishes UserAction(21) sub-types.
type UserActionType int32

// UserAction sub-types dispatched to tracker.ResetHandler.
const (
	ActionResetFull     UserActionType = 1
	ActionResetYaw      UserActionType = 2
	ActionResetMounting UserActionType = 3
)

// Errors returned by Parse. The dispatcher logs these with a hex/ASCII dump
// of the offending datagram and drops the packet.
var (
	ErrShortPacket   = errors.New("protocol: packet shorter than kind header")
	ErrShortPayload  = errors.New("protocol: payload too short for declared kind")
	ErrPacketTooLong = errors.New("protocol: datagram exceeds maximum size")
)

// MaxDatagramSize is the largest UDP payload the codec accepts.
const MaxDatagramSize = 512

// Quaternion is a minimal unit-quaternion type used for rotation packets
// and the AXES_OFFSET transform. No 3D-math dependency appears anywhere in
// the example corpus, so this stays a small stdlib-only value type
// (see DESIGN.md).
type Quaternion struct {
	X, Y, Z, W float32
}

// Mul returns q*r, the Hamilton product, used to compose AxesOffset with an
// incoming device-frame rotation.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Vec3 is a 3-component float vector for acceleration samples.
type Vec3 struct {
	X, Y, Z float32
}

// Handshake is the first packet a device sends (GLOSSARY).
type Handshake struct {
	Mac             string
	FirmwareString  string
	FirmwareBuild   int32
	BoardType       int32
	ImuType         int32
}

// RotationPacket carries a quaternion for either the legacy pre-handshake
// encoding or RotationData(17).
type RotationPacket struct {
	Kind     Kind
	SensorID int32
	DataType RotationDataType
	Rotation Quaternion
}

// AccelerationPacket carries a raw, un-remapped acceleration sample.
type AccelerationPacket struct {
	SensorID int32
	Accel    Vec3
}

// PingPongPacket is the reply to a server-originated ping (GLOSSARY).
type PingPongPacket struct {
	PingID int32
}

// SerialPacket carries one line of device-originated console text.
type SerialPacket struct {
	Payload string
}

// BatteryPacket carries raw battery telemetry; Level is in [0,1].
type BatteryPacket struct {
	Voltage float32
	Level   float32
}

// TapPacket is an informational tap event; no dispatcher state change.
type TapPacket struct {
	SensorID int32
	Value    int32
}

// ErrorPacket reports a device-side fault for a specific sensor.
type ErrorPacket struct {
	SensorID int32
	Code     int32
}

// SensorInfoPacket announces or re-announces a sensor.
type SensorInfoPacket struct {
	SensorID   int32
	SensorType int32
	RawStatus  int32
}

// SignalStrengthPacket carries RSSI-style telemetry for every tracker.
type SignalStrengthPacket struct {
	Strength int32
}

// TemperaturePacket carries a temperature sample for one sensor.
type TemperaturePacket struct {
	SensorID int32
	Celsius  float32
}

// UserActionPacket dispatches a reset command by sub-type.
type UserActionPacket struct {
	Action UserActionType
}

// FeatureFlagsPacket exchanges a bitset of optional protocol features.
type FeatureFlagsPacket struct {
	Flags uint32
}

// Status decodes a SensorInfo packet's raw status into the tracker's
// status enumeration. The codec owns this mapping because the wire
// encoding of "status" historically differs between firmware generations.
type Status int

// Tracker status values.
const (
	StatusOK Status = iota
	StatusDisconnected
	StatusError
)

// DecodeStatus maps a raw SensorInfo/handshake status code to Status.
// Code 0 decodes to StatusDisconnected; every other code, including
// unrecognized ones, decodes to StatusOK.
func DecodeStatus(raw int32) Status {
	switch raw {
	case 0:
		return StatusDisconnected
	default:
		return StatusOK
	}
}

// kindHeaderSize is the size in bytes of the leading kind field.
const kindHeaderSize = 4

// PeekKind reads the packet kind from the front of a datagram without
// consuming it, so the caller can decide whether a device lookup is
// required before full parsing.
func PeekKind(buf []byte) (Kind, error) {
	if len(buf) < kindHeaderSize {
		return 0, ErrShortPacket
	}
	return Kind(int32(binary.BigEndian.Uint32(buf))), nil
}

// reader is a small cursor over a datagram payload, used by the per-kind
// decoders below. It never allocates and never panics on short input —
// every read is bounds-checked and returns ErrShortPayload instead.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return ErrShortPayload
	}
	return nil
}

func (r *reader) int32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *reader) int64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *reader) float32() (float32, error) {
	v, err := r.int32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

func (r *reader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// str reads an n-byte length-prefixed (1-byte length) UTF-8 string.
func (r *reader) str() (string, error) {
	n, err := r.byte()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) remaining() string {
	return string(r.buf[r.pos:])
}
