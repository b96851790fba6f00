//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrUnexpectedConnType indicates net.ListenConfig.ListenPacket returned a
// PacketConn that isn't a *net.UDPConn.
var ErrUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")

// Listen binds a UDP socket on the given port across all local addresses,
// configured with SO_REUSEADDR (so a restarting daemon doesn't have to wait
// out TIME_WAIT) and SO_BROADCAST (required to send the discovery
// broadcast).
//
// Uses a net.ListenConfig.Control callback to apply socket options via
// golang.org/x/sys/unix before the kernel completes the bind.
func Listen(ctx context.Context, port uint16) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setListenerSockOpts(c)
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen udp4 :%d: %w", port, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, fmt.Errorf("listen udp4 :%d: %w: %w", port, ErrUnexpectedConnType, closeErr)
	}

	return conn, nil
}

func setListenerSockOpts(c syscall.RawConn) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)

		if sockErr = unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			sockErr = fmt.Errorf("set SO_REUSEADDR: %w", sockErr)
			return
		}
		if sockErr = unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); sockErr != nil {
			sockErr = fmt.Errorf("set SO_BROADCAST: %w", sockErr)
			return
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}
