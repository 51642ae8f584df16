// Package sockopt tunes accepted TCP sockets and forcibly shuts down
// sockets the server refuses to serve.
package sockopt

import (
	"errors"
	"net"
)

// ErrNotSyscallConn is returned for connections that expose no file descriptor.
var ErrNotSyscallConn = errors.New("connection has no raw file descriptor")

// Tune enables TCP_NODELAY and SO_KEEPALIVE on conn. Non-TCP connections are
// left untouched.
func Tune(conn net.Conn) error {
	if _, ok := conn.(*net.TCPConn); !ok {
		return nil
	}
	return tune(conn)
}

// Shutdown shuts down both directions of conn and closes it.
func Shutdown(conn net.Conn) error {
	err := shutdown(conn)
	if cerr := conn.Close(); err == nil && cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	return err
}
