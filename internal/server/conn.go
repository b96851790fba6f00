package server

import (
	"net"
	"time"
)

// PacketConn abstracts the UDP socket the event loop owns exclusively: a
// minimal collaborator interface scoped to exactly the operations the
// loop needs, so tests can substitute a fake without a real socket.
type PacketConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// verify *net.UDPConn satisfies PacketConn.
var _ PacketConn = (*net.UDPConn)(nil)
