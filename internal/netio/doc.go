// Package netio binds the single UDP socket owotrackd's event loop reads
// and writes, and enumerates local broadcast addresses for sensor
// discovery.
//
// Linux-specific implementation uses golang.org/x/sys/unix to set
// SO_REUSEADDR/SO_BROADCAST on the listening socket.
package netio
