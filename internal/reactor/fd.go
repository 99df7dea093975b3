// Author: momentics <momentics@gmail.com>
package reactor

import (
	"net"
	"syscall"
)

// fdOf extracts the underlying file descriptor of a net.Conn that
// supports SyscallConn, returning ok=false for transports that don't
// (e.g. net.Pipe, used in tests), which fall back to a per-connection
// goroutine instead of poller registration.
func fdOf(c net.Conn) (int, bool) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return 0, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fd int
	if err := raw.Control(func(f uintptr) {
		fd = int(f)
	}); err != nil {
		return 0, false
	}
	return fd, true
}
