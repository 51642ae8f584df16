package pools

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

// testServer hands out accepted server-side connections for client dials.
type testServer struct {
	t  *testing.T
	ln net.Listener
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return &testServer{t: t, ln: ln}
}

// connect dials the listener, optionally writes payload, and returns both
// ends. The client end is closed on cleanup.
func (s *testServer) connect(payload string) (client, server net.Conn) {
	s.t.Helper()
	client, err := net.Dial(s.ln.Addr().Network(), s.ln.Addr().String())
	require.NoError(s.t, err)
	s.t.Cleanup(func() { client.Close() })

	if payload != "" {
		_, err = client.Write([]byte(payload))
		require.NoError(s.t, err)
	}

	server, err = s.ln.Accept()
	require.NoError(s.t, err)
	return client, server
}
