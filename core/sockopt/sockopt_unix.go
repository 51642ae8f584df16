//go:build unix

package sockopt

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func control(conn net.Conn, fn func(fd int) error) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return ErrNotSyscallConn
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var opErr error
	if err := raw.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return err
	}
	return opErr
}

func tune(conn net.Conn) error {
	return control(conn, func(fd int) error {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	})
}

func shutdown(conn net.Conn) error {
	err := control(conn, func(fd int) error {
		return unix.Shutdown(fd, unix.SHUT_RDWR)
	})
	// The peer may already be gone.
	if errors.Is(err, unix.ENOTCONN) || errors.Is(err, ErrNotSyscallConn) {
		return nil
	}
	return err
}
