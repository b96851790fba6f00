package protocol

import (
	"encoding/binary"
)

// Packet is a tagged variant: Kind identifies which of the payload structs
// declared in packet.go is stored in Payload (nil for kinds without a
// body). The dispatcher type-switches on
// Payload rather than walking a class hierarchy.
type Packet struct {
	Kind    Kind
	Payload any
}

// AxesOffset is the constant quaternion aligning a device's sensor frame
// to the host's world frame: fromRotationVector(-pi/2, 0, 0), a rotation
// about the X axis by -90 degrees.
var AxesOffset = Quaternion{X: -0.70710678, Y: 0, Z: 0, W: 0.70710678}

// Codec implements the wire-level parse/write pair the event loop and
// dispatcher depend on through the ProtocolCodec interface. It is
// stateless: device-specific bookkeeping (last packet number, protocol
// kind) lives on registry.Device, not here.
type Codec struct{}

// NewCodec returns the default owoTrack-lineage codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Parse decodes a single UDP datagram payload into zero or more Packet
// values. Unknown kinds yield an empty slice rather than an error — the
// wire protocol is forward-compatible with reserved/future kinds.
func (c *Codec) Parse(buf []byte) ([]Packet, error) {
	if len(buf) > MaxDatagramSize {
		return nil, ErrPacketTooLong
	}

	kind, err := PeekKind(buf)
	if err != nil {
		return nil, err
	}

	r := newReader(buf[kindHeaderSize:])
	r.pos = 0

	switch kind {
	case KindHeartbeatIn, KindHeartbeatOut:
		return []Packet{{Kind: kind, Payload: nil}}, nil

	case KindRotationLegacy:
		p, err := parseLegacyRotation(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindHandshake:
		p, err := parseHandshake(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindAcceleration:
		p, err := parseAcceleration(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindPingPong:
		p, err := parsePingPong(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindSerial:
		return []Packet{{Kind: kind, Payload: SerialPacket{Payload: r.remaining()}}}, nil

	case KindBatteryLevel:
		p, err := parseBattery(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindTap:
		p, err := parseTap(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindError:
		p, err := parseError(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindSensorInfo:
		p, err := parseSensorInfo(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindRotationData:
		p, err := parseRotationData(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindMagAccuracy:
		return []Packet{{Kind: kind, Payload: nil}}, nil

	case KindSignalStrength:
		p, err := parseSignalStrength(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindTemperature:
		p, err := parseTemperature(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindUserAction:
		p, err := parseUserAction(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindFeatureFlags:
		p, err := parseFeatureFlags(r)
		if err != nil {
			return nil, err
		}
		return []Packet{{Kind: kind, Payload: p}}, nil

	case KindProtocolChange:
		return []Packet{{Kind: kind, Payload: nil}}, nil

	default:
		return nil, nil
	}
}

func parseLegacyRotation(r *reader) (RotationPacket, error) {
	sensorID, err := r.int32()
	if err != nil {
		return RotationPacket{}, err
	}
	q, err := parseQuaternion(r)
	if err != nil {
		return RotationPacket{}, err
	}
	return RotationPacket{Kind: KindRotationLegacy, SensorID: sensorID, Rotation: q}, nil
}

func parseRotationData(r *reader) (RotationPacket, error) {
	sensorID, err := r.int32()
	if err != nil {
		return RotationPacket{}, err
	}
	dataType, err := r.int32()
	if err != nil {
		return RotationPacket{}, err
	}
	q, err := parseQuaternion(r)
	if err != nil {
		return RotationPacket{}, err
	}
	return RotationPacket{
		Kind:     KindRotationData,
		SensorID: sensorID,
		DataType: RotationDataType(dataType),
		Rotation: q,
	}, nil
}

func parseQuaternion(r *reader) (Quaternion, error) {
	x, err := r.float32()
	if err != nil {
		return Quaternion{}, err
	}
	y, err := r.float32()
	if err != nil {
		return Quaternion{}, err
	}
	z, err := r.float32()
	if err != nil {
		return Quaternion{}, err
	}
	w, err := r.float32()
	if err != nil {
		return Quaternion{}, err
	}
	return Quaternion{X: x, Y: y, Z: z, W: w}, nil
}

func parseHandshake(r *reader) (Handshake, error) {
	build, err := r.int32()
	if err != nil {
		return Handshake{}, err
	}
	board, err := r.int32()
	if err != nil {
		return Handshake{}, err
	}
	imu, err := r.int32()
	if err != nil {
		return Handshake{}, err
	}
	fw, err := r.str()
	if err != nil {
		return Handshake{}, err
	}
	mac, err := r.str()
	if err != nil {
		return Handshake{}, err
	}
	return Handshake{
		Mac:            mac,
		FirmwareString: fw,
		FirmwareBuild:  build,
		BoardType:      board,
		ImuType:        imu,
	}, nil
}

func parseAcceleration(r *reader) (AccelerationPacket, error) {
	sensorID, err := r.int32()
	if err != nil {
		return AccelerationPacket{}, err
	}
	x, err := r.float32()
	if err != nil {
		return AccelerationPacket{}, err
	}
	y, err := r.float32()
	if err != nil {
		return AccelerationPacket{}, err
	}
	z, err := r.float32()
	if err != nil {
		return AccelerationPacket{}, err
	}
	return AccelerationPacket{SensorID: sensorID, Accel: Vec3{X: x, Y: y, Z: z}}, nil
}

func parsePingPong(r *reader) (PingPongPacket, error) {
	if _, err := r.int64(); err != nil {
		return PingPongPacket{}, err
	}
	id, err := r.int32()
	if err != nil {
		return PingPongPacket{}, err
	}
	return PingPongPacket{PingID: id}, nil
}

func parseBattery(r *reader) (BatteryPacket, error) {
	voltage, err := r.float32()
	if err != nil {
		return BatteryPacket{}, err
	}
	level, err := r.float32()
	if err != nil {
		return BatteryPacket{}, err
	}
	return BatteryPacket{Voltage: voltage, Level: level}, nil
}

func parseTap(r *reader) (TapPacket, error) {
	sensorID, err := r.int32()
	if err != nil {
		return TapPacket{}, err
	}
	value, err := r.int32()
	if err != nil {
		return TapPacket{}, err
	}
	return TapPacket{SensorID: sensorID, Value: value}, nil
}

func parseError(r *reader) (ErrorPacket, error) {
	sensorID, err := r.int32()
	if err != nil {
		return ErrorPacket{}, err
	}
	code, err := r.int32()
	if err != nil {
		return ErrorPacket{}, err
	}
	return ErrorPacket{SensorID: sensorID, Code: code}, nil
}

func parseSensorInfo(r *reader) (SensorInfoPacket, error) {
	sensorID, err := r.int32()
	if err != nil {
		return SensorInfoPacket{}, err
	}
	sensorType, err := r.int32()
	if err != nil {
		return SensorInfoPacket{}, err
	}
	status, err := r.int32()
	if err != nil {
		return SensorInfoPacket{}, err
	}
	return SensorInfoPacket{SensorID: sensorID, SensorType: sensorType, RawStatus: status}, nil
}

func parseSignalStrength(r *reader) (SignalStrengthPacket, error) {
	strength, err := r.int32()
	if err != nil {
		return SignalStrengthPacket{}, err
	}
	return SignalStrengthPacket{Strength: strength}, nil
}

func parseTemperature(r *reader) (TemperaturePacket, error) {
	sensorID, err := r.int32()
	if err != nil {
		return TemperaturePacket{}, err
	}
	celsius, err := r.float32()
	if err != nil {
		return TemperaturePacket{}, err
	}
	return TemperaturePacket{SensorID: sensorID, Celsius: celsius}, nil
}

func parseUserAction(r *reader) (UserActionPacket, error) {
	action, err := r.int32()
	if err != nil {
		return UserActionPacket{}, err
	}
	return UserActionPacket{Action: UserActionType(action)}, nil
}

func parseFeatureFlags(r *reader) (FeatureFlagsPacket, error) {
	flags, err := r.int32()
	if err != nil {
		return FeatureFlagsPacket{}, err
	}
	return FeatureFlagsPacket{Flags: uint32(flags)}, nil
}

// WriteHeartbeat, WriteRawPing, WriteHandshakeResponse,
// WriteSensorInfoResponse and WriteFeatureFlags below are free functions;
// these methods adapt them to server.ProtocolCodec, the interface the
// event loop and dispatcher actually depend on.

// WriteHeartbeat serializes a bare heartbeat/keepalive datagram.
func (c *Codec) WriteHeartbeat(buf []byte, kind Kind) []byte {
	return WriteHeartbeat(buf, kind)
}

// WriteRawPing serializes the server-originated ping datagram.
func (c *Codec) WriteRawPing(buf []byte, pingID int32) []byte {
	return WriteRawPing(buf, pingID)
}

// WriteHandshakeResponse serializes the handshake acknowledgement.
func (c *Codec) WriteHandshakeResponse(buf []byte) []byte {
	return WriteHandshakeResponse(buf)
}

// WriteSensorInfoResponse serializes the sensor-info acknowledgement.
func (c *Codec) WriteSensorInfoResponse(buf []byte, sensorID int32) []byte {
	return WriteSensorInfoResponse(buf, sensorID)
}

// WriteFeatureFlags serializes the server's feature-flag set in reply.
func (c *Codec) WriteFeatureFlags(buf []byte, flags uint32) []byte {
	return WriteFeatureFlags(buf, flags)
}

// writer is the mirror of reader: a bounds-checked cursor over a
// caller-supplied send buffer. The event loop resets (truncates) and
// reuses one buffer across every Write call.
type writer struct {
	buf []byte
}

// WriteRawPing serializes the server-originated ping datagram:
// int32(10) | int64(0) | int32(pingId).
func WriteRawPing(buf []byte, pingID int32) []byte {
	w := writer{buf: buf[:0]}
	w.putInt32(int32(KindPingPong))
	w.putInt64(0)
	w.putInt32(pingID)
	return w.buf
}

// WriteHeartbeat serializes a bare heartbeat/keepalive datagram of the
// given sub-kind (0 or 1).
func WriteHeartbeat(buf []byte, kind Kind) []byte {
	w := writer{buf: buf[:0]}
	w.putInt32(int32(kind))
	return w.buf
}

// WriteHandshakeResponse serializes the handshake acknowledgement sent
// back to a newly handshaken or adopted device.
func WriteHandshakeResponse(buf []byte) []byte {
	w := writer{buf: buf[:0]}
	w.putInt32(int32(KindHandshake))
	return w.buf
}

// WriteSensorInfoResponse serializes the sensor-info acknowledgement sent
// after provisioning a tracker from a SensorInfo(15) packet.
func WriteSensorInfoResponse(buf []byte, sensorID int32) []byte {
	w := writer{buf: buf[:0]}
	w.putInt32(int32(KindSensorInfo))
	w.putInt32(sensorID)
	return w.buf
}

// WriteFeatureFlags serializes the server's feature-flag set back to the
// peer in reply to FeatureFlags(22).
func WriteFeatureFlags(buf []byte, flags uint32) []byte {
	w := writer{buf: buf[:0]}
	w.putInt32(int32(KindFeatureFlags))
	w.putInt32(int32(flags))
	return w.buf
}

func (w *writer) putInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}
