package server_test

import (
	"net"
	"sync"
	"time"
)

// sentPacket records one outbound datagram for assertions.
type sentPacket struct {
	addr *net.UDPAddr
	data []byte
}

// timeoutError satisfies net.Error with Timeout() true, standing in for
// the deadline expiry net.UDPConn.ReadFromUDP returns every poll cycle
// when nothing arrived.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeConn is an in-memory server.PacketConn: ReadFromUDP pops queued
// datagrams (or returns timeoutError once the queue drains), WriteToUDP
// records everything sent, and Close just flips a flag tests can assert
// on for the shutdown scenario.
type fakeConn struct {
	mu      sync.Mutex
	inbox   []inboundPacket
	sent    []sentPacket
	closed  bool
	onEmpty func()
}

type inboundPacket struct {
	addr *net.UDPAddr
	data []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{}
}

// enqueue makes data from addr available to the next ReadFromUDP call.
func (c *fakeConn) enqueue(addr *net.UDPAddr, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = append(c.inbox, inboundPacket{addr: addr, data: data})
}

func (c *fakeConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	c.mu.Lock()
	if len(c.inbox) == 0 {
		onEmpty := c.onEmpty
		c.mu.Unlock()
		if onEmpty != nil {
			onEmpty()
		}
		return 0, nil, timeoutError{}
	}
	pkt := c.inbox[0]
	c.inbox = c.inbox[1:]
	c.mu.Unlock()

	n := copy(b, pkt.data)
	return n, pkt.addr, nil
}

func (c *fakeConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	data := make([]byte, len(b))
	copy(data, b)

	c.mu.Lock()
	c.sent = append(c.sent, sentPacket{addr: addr, data: data})
	c.mu.Unlock()
	return len(b), nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentPackets() []sentPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentPacket, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
