package server

import "github.com/owotrack/owotrackd/internal/protocol"

// ProtocolCodec is the wire-level collaborator the event loop and
// dispatcher depend on. They depend only on this interface, never on the
// concrete protocol.Codec type, so the codec stays a swappable, opaque
// collaborator.
type ProtocolCodec interface {
	Parse(buf []byte) ([]protocol.Packet, error)
	WriteHeartbeat(buf []byte, kind protocol.Kind) []byte
	WriteRawPing(buf []byte, pingID int32) []byte
	WriteHandshakeResponse(buf []byte) []byte
	WriteSensorInfoResponse(buf []byte, sensorID int32) []byte
	WriteFeatureFlags(buf []byte, flags uint32) []byte
}
