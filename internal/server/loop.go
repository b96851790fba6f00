package server

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/owotrack/owotrackd/internal/protocol"
	"github.com/owotrack/owotrackd/internal/registry"
	"github.com/owotrack/owotrackd/internal/tracker"
)

// Cadences and limits for the event loop's three duties.
const (
	receiveTimeout    = 250 * time.Millisecond
	discoveryInterval = 2000 * time.Millisecond
	keepaliveInterval = 500 * time.Millisecond
	pingInterval      = 500 * time.Millisecond
	serialFlushAfter  = 500 * time.Millisecond
	livenessTimeoutMs = 1000
)

// randomPingID draws a fresh ping identifier; each ping carries an id
// the device must echo back unchanged.
func randomPingID() int32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return int32(binary.BigEndian.Uint32(b[:]) & 0x7fffffff)
}

// Loop is a single-threaded cooperative scheduler multiplexing discovery,
// keepalive/ping/serial-flush, and receive-driven dispatch on one UDP
// socket. A single owned thread (rather than one goroutine per peer)
// keeps registry access lock-light and packet ordering deterministic.
type Loop struct {
	conn           PacketConn
	codec          ProtocolCodec
	registry       *registry.Registry
	dispatcher     *Dispatcher
	metrics        MetricsReporter
	logger         *slog.Logger
	now            func() int64
	port           uint16
	threadName     string
	broadcastAddrs []net.IP

	recvBuf []byte
	sendBuf []byte

	lastDiscoveryMs int64
	lastKeepaliveMs int64
}

// NewLoop constructs a Loop. metrics may be nil.
func NewLoop(
	conn PacketConn,
	codec ProtocolCodec,
	reg *registry.Registry,
	dispatcher *Dispatcher,
	broadcastAddrs []net.IP,
	port uint16,
	threadName string,
	metrics MetricsReporter,
	logger *slog.Logger,
) *Loop {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Loop{
		conn:           conn,
		codec:          codec,
		registry:       reg,
		dispatcher:     dispatcher,
		metrics:        metrics,
		logger:         logger.With(slog.String("component", "event_loop"), slog.String("thread_name", threadName)),
		now:            registry.NowMs,
		port:           port,
		threadName:     threadName,
		broadcastAddrs: broadcastAddrs,
		recvBuf:        make([]byte, protocol.MaxDatagramSize),
		sendBuf:        make([]byte, 0, protocol.MaxDatagramSize),
	}
}

// Run drives the event loop until ctx is cancelled. It returns nil on
// clean cancellation; any other error is a fatal socket failure. The
// loop never exits for any other reason.
func (l *Loop) Run(ctx context.Context) error {
	defer l.conn.Close()

	l.logger.Info("event loop started", slog.Int("port", int(l.port)))

	for {
		if ctx.Err() != nil {
			l.logger.Info("event loop stopping")
			return nil
		}

		l.runDiscovery()

		if err := l.runReceive(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		l.runKeepalive()
	}
}

// runDiscovery broadcasts a discovery heartbeat while no sensors are known.
func (l *Loop) runDiscovery() {
	if l.registry.HasAnySensors() {
		return
	}

	now := l.now()
	if now-l.lastDiscoveryMs < discoveryInterval.Milliseconds() {
		return
	}
	l.lastDiscoveryMs = now

	l.sendBuf = l.codec.WriteHeartbeat(l.sendBuf[:0], protocol.KindHeartbeatIn)
	for _, ip := range l.broadcastAddrs {
		addr := &net.UDPAddr{IP: ip, Port: int(l.port)}
		if _, err := l.conn.WriteToUDP(l.sendBuf, addr); err != nil {
			l.logger.Warn("discovery broadcast failed", slog.String("addr", addr.String()), slog.String("error", err.Error()))
			continue
		}
		l.metrics.IncDiscoveryBroadcasts()
	}
}

// runReceive polls the socket for one inbound datagram with a short deadline.
func (l *Loop) runReceive() error {
	if err := l.conn.SetReadDeadline(time.Now().Add(receiveTimeout)); err != nil {
		return err
	}

	n, addr, err := l.conn.ReadFromUDP(l.recvBuf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		l.logger.Warn("recv failed", slog.String("error", err.Error()))
		return nil
	}

	pkts, err := l.codec.Parse(l.recvBuf[:n])
	if err != nil {
		l.metrics.IncPacketsDropped()
		l.logger.Warn("parse failed",
			slog.String("addr", addr.String()),
			slog.String("error", err.Error()),
			slog.String("dump", protocol.HexDump(l.recvBuf[:n])),
		)
		return nil
	}

	for _, pkt := range pkts {
		l.dispatcher.Dispatch(pkt, addr)
	}

	return nil
}

// runKeepalive sweeps every known device for heartbeat, liveness,
// serial-flush, and ping duties.
func (l *Loop) runKeepalive() {
	now := l.now()
	if now-l.lastKeepaliveMs < keepaliveInterval.Milliseconds() {
		return
	}
	l.lastKeepaliveMs = now

	devices := l.registry.Devices()
	for _, dev := range devices {
		l.sweepDevice(dev, now)
	}
	l.reportDeviceCounts(devices)
}

// reportDeviceCounts refreshes the devices gauge, labeled by protocol;
// called once per keepalive sweep rather than per event since adoption
// can change a device's identity without changing the total count.
func (l *Loop) reportDeviceCounts(devices []*registry.Device) {
	counts := make(map[string]float64)
	for _, dev := range devices {
		counts[dev.Protocol.String()]++
	}
	for protocolName, count := range counts {
		l.metrics.SetDevices(protocolName, count)
	}
}

func (l *Loop) sweepDevice(dev *registry.Device, now int64) {
	addr, err := net.ResolveUDPAddr("udp4", dev.Address)
	if err != nil {
		l.logger.Warn("resolve device address for keepalive", slog.String("error", err.Error()))
	} else {
		l.sendBuf = l.codec.WriteHeartbeat(l.sendBuf[:0], protocol.KindHeartbeatOut)
		if _, err := l.conn.WriteToUDP(l.sendBuf, addr); err != nil {
			l.logger.Warn("keepalive send failed", slog.String("device", dev.Name), slog.String("error", err.Error()))
		} else {
			l.metrics.IncPacketsSent(protocol.KindHeartbeatOut.String())
		}
	}

	l.sweepLiveness(dev, now)
	l.sweepSerial(dev, now)
	l.sweepPing(dev, now, addr)
}

func (l *Loop) sweepLiveness(dev *registry.Device, now int64) {
	timedOutNow := now-dev.LastPacketTimeMs > livenessTimeoutMs

	l.registry.Update(dev, func(dev *registry.Device) {
		if timedOutNow {
			for _, t := range dev.Trackers {
				t.SetStatus(tracker.StatusDisconnected)
			}
			if !dev.TimedOut {
				dev.TimedOut = true
				l.logger.Warn("device timed out", slog.String("device", dev.Name))
				l.metrics.RecordStatusTransition("OK", "DISCONNECTED")
			}
			return
		}

		if dev.TimedOut {
			dev.TimedOut = false
			l.metrics.RecordStatusTransition("DISCONNECTED", "OK")
		}
		for _, t := range dev.Trackers {
			if t.Status() == tracker.StatusDisconnected {
				t.SetStatus(tracker.StatusOK)
			}
		}
	})
}

func (l *Loop) sweepSerial(dev *registry.Device, now int64) {
	if dev.SerialBuffer == "" || now-dev.LastSerialUpdateMs <= serialFlushAfter.Milliseconds() {
		return
	}

	l.registry.Update(dev, func(dev *registry.Device) {
		if dev.SerialBuffer == "" {
			return
		}
		l.dispatcher.console.WriteLine("[" + dev.Name + "] " + dev.SerialBuffer)
		dev.SerialBuffer = ""
	})
}

func (l *Loop) sweepPing(dev *registry.Device, now int64, addr *net.UDPAddr) {
	if now-dev.LastPingPacketTimeMs <= pingInterval.Milliseconds() {
		return
	}
	if addr == nil {
		return
	}

	pingID := randomPingID()
	l.registry.Update(dev, func(dev *registry.Device) {
		dev.LastPingPacketID = pingID
		dev.LastPingPacketTimeMs = now
	})

	l.sendBuf = l.codec.WriteRawPing(l.sendBuf[:0], pingID)
	if _, err := l.conn.WriteToUDP(l.sendBuf, addr); err != nil {
		l.logger.Warn("ping send failed", slog.String("device", dev.Name), slog.String("error", err.Error()))
		return
	}
	l.metrics.IncPacketsSent(protocol.KindPingPong.String())
}
