package tests

import (
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/searchktools/hermit-server/core"
	"github.com/searchktools/hermit-server/core/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clients  = 64
	requests = 20
)

// TestStressAdmission floods a small pool. Every connection must end up
// either answered in full or rejected with nothing written, and the
// engine's counters must account for all of them.
func TestStressAdmission(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	e, err := core.NewEngine(core.Options{Host: "127.0.0.1", MaxLines: 4})
	require.NoError(t, err)
	e.GET("/hello", func(_ *http.Request, res *http.Response) {
		time.Sleep(time.Millisecond)
		res.Respond([]byte("Hello"))
	})

	done := make(chan error, 1)
	go func() { done <- e.Start() }()

	var ok, rejected, broken atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < requests; j++ {
				resp, err := hello(e.Addr().String())
				switch {
				case err == nil && strings.HasSuffix(resp, "\r\n\r\nHello"):
					ok.Add(1)
				case resp == "":
					rejected.Add(1)
				default:
					broken.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, broken.Load())
	assert.Positive(t, ok.Load())
	assert.Equal(t, int64(clients*requests), ok.Load()+rejected.Load())

	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.Served+s.Rejected == s.Accepted
	}, 5*time.Second, 20*time.Millisecond)

	s := e.Stats()
	assert.Equal(t, uint64(clients*requests), s.Accepted)
	assert.LessOrEqual(t, s.Lines, 4)
	assert.Zero(t, s.Pruned)
	t.Logf("\n%s", s)

	require.NoError(t, e.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

// hello returns whatever the server wrote before closing. A rejected
// connection may surface as a reset, so errors come with an empty response.
func hello(addr string) (string, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /hello HTTP/1.1\r\n\r\n")); err != nil {
		return "", err
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := io.ReadAll(conn)
	return string(data), err
}
