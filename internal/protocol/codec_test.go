package protocol_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/owotrack/owotrackd/internal/protocol"
)

func putInt32(buf []byte, off int, v int32) {
	binary.BigEndian.PutUint32(buf[off:], uint32(v))
}

func TestParseHeartbeat(t *testing.T) {
	t.Parallel()

	for _, kind := range []protocol.Kind{protocol.KindHeartbeatIn, protocol.KindHeartbeatOut} {
		buf := make([]byte, 4)
		putInt32(buf, 0, int32(kind))

		c := protocol.NewCodec()
		pkts, err := c.Parse(buf)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if len(pkts) != 1 || pkts[0].Kind != kind {
			t.Fatalf("got %+v, want single packet of kind %v", pkts, kind)
		}
	}
}

func TestParseHandshake(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4+4+4+4+1+len("9.0.0")+1+len("AA:BB:CC:DD:EE:FF"))
	putInt32(buf, 0, int32(protocol.KindHandshake))
	putInt32(buf, 4, 9)
	putInt32(buf, 8, 1)
	putInt32(buf, 12, 2)
	buf[16] = byte(len("9.0.0"))
	copy(buf[17:], "9.0.0")
	off := 17 + len("9.0.0")
	buf[off] = byte(len("AA:BB:CC:DD:EE:FF"))
	copy(buf[off+1:], "AA:BB:CC:DD:EE:FF")

	c := protocol.NewCodec()
	pkts, err := c.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}
	hs, ok := pkts[0].Payload.(protocol.Handshake)
	if !ok {
		t.Fatalf("payload type = %T, want Handshake", pkts[0].Payload)
	}
	if hs.Mac != "AA:BB:CC:DD:EE:FF" || hs.FirmwareString != "9.0.0" ||
		hs.FirmwareBuild != 9 || hs.BoardType != 1 || hs.ImuType != 2 {
		t.Fatalf("got %+v, want decoded handshake fields", hs)
	}
}

func TestParseHandshakeEmptyFirmware(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4+4+4+4+1+1+len("AA:BB:CC:DD:EE:FF"))
	putInt32(buf, 0, int32(protocol.KindHandshake))
	putInt32(buf, 4, 7)
	putInt32(buf, 8, 0)
	putInt32(buf, 12, 2)
	buf[16] = 0
	off := 17
	buf[off] = byte(len("AA:BB:CC:DD:EE:FF"))
	copy(buf[off+1:], "AA:BB:CC:DD:EE:FF")

	c := protocol.NewCodec()
	pkts, err := c.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	hs := pkts[0].Payload.(protocol.Handshake)
	if hs.FirmwareString != "" || hs.FirmwareBuild != 7 {
		t.Fatalf("got %+v, want empty firmware string and build=7", hs)
	}
}

func TestParseAccelerationRemap(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4+4+4+4+4)
	putInt32(buf, 0, int32(protocol.KindAcceleration))
	putInt32(buf, 4, 0)
	putInt32(buf, 8, int32(math.Float32bits(1)))
	putInt32(buf, 12, int32(math.Float32bits(2)))
	putInt32(buf, 16, int32(math.Float32bits(3)))

	c := protocol.NewCodec()
	pkts, err := c.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	accel := pkts[0].Payload.(protocol.AccelerationPacket)
	if accel.Accel.X != 1 || accel.Accel.Y != 2 || accel.Accel.Z != 3 {
		t.Fatalf("got %+v, want raw (1,2,3) (dispatcher remaps)", accel.Accel)
	}
}

func TestParseRotationDataUnknownType(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4+4+4+4*4)
	putInt32(buf, 0, int32(protocol.KindRotationData))
	putInt32(buf, 4, 0)
	putInt32(buf, 8, 99)

	c := protocol.NewCodec()
	pkts, err := c.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rot := pkts[0].Payload.(protocol.RotationPacket)
	if rot.DataType != 99 {
		t.Fatalf("got DataType=%d, want pass-through of unknown sub-type", rot.DataType)
	}
}

func TestParseShortPacket(t *testing.T) {
	t.Parallel()

	c := protocol.NewCodec()
	if _, err := c.Parse([]byte{0, 0}); err == nil {
		t.Fatal("Parse(short) = nil error, want ErrShortPacket")
	}
}

func TestParseUnknownKindYieldsNothing(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4)
	putInt32(buf, 0, 9999)

	c := protocol.NewCodec()
	pkts, err := c.Parse(buf)
	if err != nil {
		t.Fatalf("Parse(unknown kind) = %v, want nil error", err)
	}
	if len(pkts) != 0 {
		t.Fatalf("got %d packets, want 0 for unknown kind", len(pkts))
	}
}

func TestWriteRawPing(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 0, 16)
	out := protocol.WriteRawPing(buf, 0x11223344)

	if len(out) != 16 {
		t.Fatalf("got len=%d, want 16 (int32+int64+int32)", len(out))
	}
	if got := int32(binary.BigEndian.Uint32(out[0:4])); got != int32(protocol.KindPingPong) {
		t.Fatalf("got kind=%d, want %d", got, protocol.KindPingPong)
	}
	if got := binary.BigEndian.Uint64(out[4:12]); got != 0 {
		t.Fatalf("got sequence=%d, want 0", got)
	}
	if got := int32(binary.BigEndian.Uint32(out[12:16])); got != 0x11223344 {
		t.Fatalf("got pingId=%x, want %x", got, 0x11223344)
	}
}

func TestAxesOffsetTransformsIdentity(t *testing.T) {
	t.Parallel()

	identity := protocol.Quaternion{W: 1}
	got := protocol.AxesOffset.Mul(identity)

	if !approxEqual(got.X, protocol.AxesOffset.X) ||
		!approxEqual(got.Y, protocol.AxesOffset.Y) ||
		!approxEqual(got.Z, protocol.AxesOffset.Z) ||
		!approxEqual(got.W, protocol.AxesOffset.W) {
		t.Fatalf("AxesOffset * identity = %+v, want AxesOffset %+v", got, protocol.AxesOffset)
	}
}

func approxEqual(a, b float32) bool {
	const eps = 1e-5
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}
