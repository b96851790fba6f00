package server

import (
	"log/slog"
	"net"

	"github.com/owotrack/owotrackd/internal/protocol"
	"github.com/owotrack/owotrackd/internal/registry"
	"github.com/owotrack/owotrackd/internal/tracker"
)

// legacyAutoProvisionFirmwareBuild is the firmware-build threshold below
// which a device never sends a SensorInfo packet, so the handshake itself
// must auto-provision sensor 0.
const legacyAutoProvisionFirmwareBuild = 9

// legacyAutoProvisionStatus is the fixed status handed to the
// auto-provisioned sensor 0.
const legacyAutoProvisionStatus = 1

// Dispatcher maps each parsed packet to its effect on the registry, the
// sensors it owns, and any outbound acknowledgement.
type Dispatcher struct {
	registry    *registry.Registry
	host        tracker.Host
	provisioner *tracker.Provisioner
	codec       ProtocolCodec
	conn        PacketConn
	console     ConsoleSink
	metrics     MetricsReporter
	logger      *slog.Logger

	sendBuf []byte
	now     func() int64
}

// NewDispatcher constructs a Dispatcher. metrics may be nil (defaults to
// a no-op reporter).
func NewDispatcher(
	reg *registry.Registry,
	host tracker.Host,
	codec ProtocolCodec,
	conn PacketConn,
	console ConsoleSink,
	metrics MetricsReporter,
	logger *slog.Logger,
) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		registry:    reg,
		host:        host,
		provisioner: tracker.NewProvisioner(host, logger),
		codec:       codec,
		conn:        conn,
		console:     console,
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "dispatcher")),
		sendBuf:     make([]byte, 0, protocol.MaxDatagramSize),
		now:         registry.NowMs,
	}
}

// Dispatch processes one parsed packet received from peerAddr.
// Non-handshake packets with no known device mapping are dropped
// silently: a stray packet from an unknown peer is typically a discovery
// echo, not worth logging.
func (d *Dispatcher) Dispatch(pkt protocol.Packet, peerAddr *net.UDPAddr) {
	d.metrics.IncPacketsReceived(pkt.Kind.String())

	if pkt.Kind == protocol.KindHandshake {
		hs, ok := pkt.Payload.(protocol.Handshake)
		if !ok {
			return
		}
		d.dispatchHandshake(hs, peerAddr)
		return
	}

	dev := d.registry.LookupByAddress(peerAddr.String())
	if dev == nil {
		return
	}

	now := d.now()
	d.registry.Update(dev, func(dev *registry.Device) {
		dev.LastPacketTimeMs = now
	})

	switch p := pkt.Payload.(type) {
	case nil:
		// Heartbeat(0)/Heartbeat(1)/MagnetometerAccuracy(18)/
		// ProtocolChange(200): no-op beyond the liveness refresh above.
	case protocol.RotationPacket:
		d.dispatchRotation(dev, p)
	case protocol.AccelerationPacket:
		d.dispatchAcceleration(dev, p)
	case protocol.PingPongPacket:
		d.dispatchPingPong(dev, p)
	case protocol.SerialPacket:
		d.dispatchSerial(dev, p)
	case protocol.BatteryPacket:
		d.dispatchBattery(dev, p)
	case protocol.TapPacket:
		d.dispatchTap(dev, p)
	case protocol.ErrorPacket:
		d.dispatchError(dev, p)
	case protocol.SensorInfoPacket:
		d.dispatchSensorInfo(dev, p)
	case protocol.SignalStrengthPacket:
		d.dispatchSignalStrength(dev, p)
	case protocol.TemperaturePacket:
		d.dispatchTemperature(dev, p)
	case protocol.UserActionPacket:
		d.dispatchUserAction(dev, p)
	case protocol.FeatureFlagsPacket:
		d.dispatchFeatureFlags(dev, p, peerAddr)
	}
}

func (d *Dispatcher) dispatchHandshake(hs protocol.Handshake, peerAddr *net.UDPAddr) {
	info := registry.HandshakeInfo{
		Mac:            hs.Mac,
		FirmwareString: hs.FirmwareString,
		FirmwareBuild:  hs.FirmwareBuild,
		BoardType:      hs.BoardType,
		// The wire handshake here carries no separate MCU type field
		// (only board type and IMU type); McuType stays 0 for symmetry
		// with BoardType on Device/DeviceSnapshot.
	}

	dev, adopted := d.registry.FindOrAdopt(info, peerAddr.String(), peerAddr.IP.String())

	now := d.now()
	d.registry.Update(dev, func(dev *registry.Device) {
		dev.LastPacketTimeMs = now
	})

	if dev.Protocol == registry.ProtocolOwoLegacy || hs.FirmwareBuild < legacyAutoProvisionFirmwareBuild {
		d.registry.Update(dev, func(dev *registry.Device) {
			d.provisioner.Provision(deviceTrackers{d: dev}, 0, hs.ImuType, legacyAutoProvisionStatus)
		})
	}

	d.sendBuf = d.codec.WriteHandshakeResponse(d.sendBuf[:0])
	d.send(peerAddr, d.sendBuf, protocol.KindHandshake)

	action := "created"
	if adopted {
		action = "adopted"
	}
	d.logger.Info("handshake "+action,
		slog.Int("connection_index", d.registry.ConnectionIndex(dev)),
		slog.Int("board_type", int(dev.BoardType)),
		slog.Int("imu_type", int(hs.ImuType)),
		slog.Int("firmware_build", int(dev.FirmwareBuild)),
		slog.String("mac", hs.Mac),
		slog.String("name", dev.Name),
	)
}

func (d *Dispatcher) dispatchRotation(dev *registry.Device, p protocol.RotationPacket) {
	if p.Kind == protocol.KindRotationData && p.DataType != protocol.DataTypeNormal {
		// DataTypeCorrection(2) is an intentional no-op; any other
		// sub-type is likewise left unapplied.
		return
	}

	rotation := protocol.AxesOffset.Mul(p.Rotation)

	d.registry.Update(dev, func(dev *registry.Device) {
		t, ok := dev.Trackers[p.SensorID]
		if !ok {
			return
		}
		t.SetRotation(rotation)
		t.DataTick()
	})
}

func (d *Dispatcher) dispatchAcceleration(dev *registry.Device, p protocol.AccelerationPacket) {
	remapped := protocol.Vec3{X: p.Accel.Y, Y: p.Accel.X, Z: p.Accel.Z}

	d.registry.Update(dev, func(dev *registry.Device) {
		t, ok := dev.Trackers[p.SensorID]
		if !ok {
			return
		}
		t.SetAcceleration(remapped)
	})
}

func (d *Dispatcher) dispatchPingPong(dev *registry.Device, p protocol.PingPongPacket) {
	if p.PingID != dev.LastPingPacketID {
		d.logger.Debug("mismatched ping id, dropping",
			slog.Int("got", int(p.PingID)), slog.Int("want", int(dev.LastPingPacketID)))
		return
	}

	pingMs := (d.now() - dev.LastPingPacketTimeMs) / 2

	d.registry.Update(dev, func(dev *registry.Device) {
		for _, t := range dev.Trackers {
			t.SetPing(pingMs)
			t.DataTick()
		}
	})
}

func (d *Dispatcher) dispatchSerial(dev *registry.Device, p protocol.SerialPacket) {
	d.console.WriteLine("[" + dev.Name + "] " + p.Payload)
}

func (d *Dispatcher) dispatchBattery(dev *registry.Device, p protocol.BatteryPacket) {
	d.registry.Update(dev, func(dev *registry.Device) {
		for _, t := range dev.Trackers {
			t.SetBattery(p.Voltage, p.Level*100)
		}
	})
}

func (d *Dispatcher) dispatchTap(dev *registry.Device, p protocol.TapPacket) {
	d.logger.Info("tap", slog.String("device", dev.Name), slog.Int("sensor_id", int(p.SensorID)))
}

func (d *Dispatcher) dispatchError(dev *registry.Device, p protocol.ErrorPacket) {
	d.logger.Error("device reported error",
		slog.String("device", dev.Name), slog.Int("sensor_id", int(p.SensorID)), slog.Int("code", int(p.Code)))
	d.metrics.RecordStatusTransition("UNKNOWN", "ERROR")

	d.registry.Update(dev, func(dev *registry.Device) {
		if t, ok := dev.Trackers[p.SensorID]; ok {
			t.SetStatus(tracker.StatusError)
		}
	})
}

func (d *Dispatcher) dispatchSensorInfo(dev *registry.Device, p protocol.SensorInfoPacket) {
	d.registry.Update(dev, func(dev *registry.Device) {
		d.provisioner.Provision(deviceTrackers{d: dev}, p.SensorID, p.SensorType, p.RawStatus)
	})

	addr, err := net.ResolveUDPAddr("udp4", dev.Address)
	if err != nil {
		d.logger.Warn("resolve device address for sensor-info ack", slog.String("error", err.Error()))
		return
	}
	d.sendBuf = d.codec.WriteSensorInfoResponse(d.sendBuf[:0], p.SensorID)
	d.send(addr, d.sendBuf, protocol.KindSensorInfo)
}

func (d *Dispatcher) dispatchSignalStrength(dev *registry.Device, p protocol.SignalStrengthPacket) {
	d.registry.Update(dev, func(dev *registry.Device) {
		for _, t := range dev.Trackers {
			t.SetSignalStrength(p.Strength)
		}
	})
}

func (d *Dispatcher) dispatchTemperature(dev *registry.Device, p protocol.TemperaturePacket) {
	d.registry.Update(dev, func(dev *registry.Device) {
		if t, ok := dev.Trackers[p.SensorID]; ok {
			t.SetTemperature(p.Celsius)
		}
	})
}

func (d *Dispatcher) dispatchUserAction(dev *registry.Device, p protocol.UserActionPacket) {
	const source = "TrackerServer"
	reset := d.host.ResetHandler()

	switch p.Action {
	case protocol.ActionResetFull:
		reset.SendStarted("Full")
		reset.ResetTrackersFull(source)
	case protocol.ActionResetYaw:
		reset.SendStarted("Yaw")
		reset.ResetTrackersYaw(source)
	case protocol.ActionResetMounting:
		reset.SendStarted("Mounting")
		reset.ResetTrackersMounting(source)
	default:
		return
	}

	d.logger.Info("user action", slog.String("device", dev.Name), slog.Int("action", int(p.Action)))
}

func (d *Dispatcher) dispatchFeatureFlags(dev *registry.Device, p protocol.FeatureFlagsPacket, peerAddr *net.UDPAddr) {
	d.sendBuf = d.codec.WriteFeatureFlags(d.sendBuf[:0], 0)
	d.send(peerAddr, d.sendBuf, protocol.KindFeatureFlags)

	d.registry.Update(dev, func(dev *registry.Device) {
		dev.FirmwareFeatures = p.Flags
	})
}

// send writes buf to addr, logging (not failing) on transport errors: a
// single bad write must never stop the event loop.
func (d *Dispatcher) send(addr *net.UDPAddr, buf []byte, kind protocol.Kind) {
	if _, err := d.conn.WriteToUDP(buf, addr); err != nil {
		d.logger.Warn("send failed", slog.String("error", err.Error()), slog.String("kind", kind.String()))
		return
	}
	d.metrics.IncPacketsSent(kind.String())
}
