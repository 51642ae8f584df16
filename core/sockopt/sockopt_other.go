//go:build !unix

package sockopt

import "net"

func tune(conn net.Conn) error {
	tc := conn.(*net.TCPConn)
	if err := tc.SetNoDelay(true); err != nil {
		return err
	}
	return tc.SetKeepAlive(true)
}

func shutdown(conn net.Conn) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseRead()
		return tc.CloseWrite()
	}
	return nil
}
