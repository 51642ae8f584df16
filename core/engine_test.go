package core

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/searchktools/hermit-server/core/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// newTestEngine binds an ephemeral loopback port. Register routes, then
// call run.
func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	opts.Host = "127.0.0.1"
	opts.Port = 0
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

// run starts e in the background and stops it on cleanup.
func run(t *testing.T, e *Engine) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Start() }()
	t.Cleanup(func() {
		e.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})
}

func dial(t *testing.T, e *Engine) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// roundTrip writes raw and reads until the server closes the connection.
func roundTrip(t *testing.T, e *Engine, raw string) string {
	t.Helper()
	resp, err := tryRoundTrip(e, raw)
	require.NoError(t, err)
	return resp
}

func tryRoundTrip(e *Engine, raw string) (string, error) {
	conn, err := net.Dial("tcp", e.Addr().String())
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(raw)); err != nil {
		return "", err
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := io.ReadAll(conn)
	return string(data), err
}

func get(path string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: localhost\r\n\r\n"
}

func TestEngineServesRegisteredRoute(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.GET("/hello", func(_ *http.Request, res *http.Response) {
		res.Respond([]byte("Hello"))
	})
	run(t, e)

	resp := roundTrip(t, e, get("/hello"))

	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 200 OK\r\n"), resp)
	assert.Contains(t, resp, "\r\nContent-Length: 5\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\nHello"), resp)
}

func TestEngineNotFound(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.GET("/hello", func(_ *http.Request, res *http.Response) {
		res.Respond([]byte("Hello"))
	})
	run(t, e)

	resp := roundTrip(t, e, get("/nope"))
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 404 Not Found\r\n"), resp)
	assert.True(t, strings.HasSuffix(resp, "Not Found"))

	// no method fallback on an existing path
	resp = roundTrip(t, e, "POST /hello HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 404 "), resp)

	assert.Eventually(t, func() bool { return e.Stats().NotFound == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestEngineFilterRoute(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.Filter(func(r *http.Request) bool {
		return r.Path == "/sample"
	}).Handle(func(_ *http.Request, res *http.Response) {
		res.Respond([]byte("Lorem ipsum"))
	})
	e.Filter(func(r *http.Request) bool {
		return r.Method == http.PUT
	}).Filter(func(r *http.Request) bool {
		return strings.HasPrefix(r.Path, "/put/")
	}).Handle(func(_ *http.Request, res *http.Response) {
		res.String(201, "Created", "stored")
	})
	run(t, e)

	assert.True(t, strings.HasSuffix(roundTrip(t, e, get("/sample")), "Lorem ipsum"))

	resp := roundTrip(t, e, "PUT /put/a HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 201 Created\r\n"), resp)

	resp = roundTrip(t, e, get("/put/a"))
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 404 "), resp)
}

func TestEngineBadRequest(t *testing.T) {
	e := newTestEngine(t, Options{})
	run(t, e)

	resp := roundTrip(t, e, "BREW /pot HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 400 Bad Request\r\n"), resp)

	resp = roundTrip(t, e, "GET /a HTTP/1.1\r\nX-Big: "+strings.Repeat("a", 5000)+"\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 400 Bad Request\r\n"), resp)

	assert.Eventually(t, func() bool { return e.Stats().BadRequests == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestEngineEmptyResponse(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.GET("/silent", func(*http.Request, *http.Response) {})
	run(t, e)

	resp := roundTrip(t, e, get("/silent"))
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.x 500 Empty Response\r\n"), resp)
	assert.True(t, strings.HasSuffix(resp, "Empty Response"))
}

func TestEngineRequestBodyIsReadable(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.POST("/echo", func(req *http.Request, res *http.Response) {
		buf := make([]byte, 5)
		if _, err := io.ReadFull(req.Body, buf); err != nil {
			res.Error(400, "Bad Request")
			return
		}
		res.Respond(buf)
	})
	run(t, e)

	resp := roundTrip(t, e, "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nHello")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\nHello"), resp)
}

func TestEngineSurvivesPanickingHandler(t *testing.T) {
	e := newTestEngine(t, Options{MaxLines: 2})
	e.GET("/panic", func(*http.Request, *http.Response) { panic("boom") })
	e.GET("/hello", func(_ *http.Request, res *http.Response) {
		res.Respond([]byte("Hello"))
	})
	run(t, e)

	resp, _ := tryRoundTrip(e, get("/panic"))
	assert.Empty(t, resp)

	// a request racing the line's retirement may be dropped with it
	require.Eventually(t, func() bool {
		resp, err := tryRoundTrip(e, get("/hello"))
		return err == nil && strings.HasSuffix(resp, "Hello")
	}, 2*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return e.Stats().Pruned == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestEngineRejectsAtCapacity(t *testing.T) {
	e := newTestEngine(t, Options{MaxLines: 1})
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	e.GET("/slow", func(_ *http.Request, res *http.Response) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		res.Respond([]byte("done"))
	})
	run(t, e)
	t.Cleanup(func() { close(release) })

	slow := dial(t, e)
	_, err := slow.Write([]byte(get("/slow")))
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow handler did not start")
	}

	// fills the line's queue
	for i := 0; i < 2; i++ {
		dial(t, e).Write([]byte(get("/slow")))
	}

	rejected := dial(t, e)
	rejected.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := io.ReadAll(rejected)
	require.NoError(t, err)
	assert.Empty(t, data)

	assert.Eventually(t, func() bool { return e.Stats().Rejected == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, e.Stats().Lines)
}

func TestEngineStatsHandler(t *testing.T) {
	e := newTestEngine(t, Options{MaxLines: 3})
	e.GET("/_stats", e.StatsHandler())
	e.GET("/hello", func(_ *http.Request, res *http.Response) {
		res.Respond([]byte("Hello"))
	})
	run(t, e)

	roundTrip(t, e, get("/hello"))

	resp := roundTrip(t, e, get("/_stats"))
	require.Contains(t, resp, "Content-Type: application/json\r\n")
	_, body, _ := strings.Cut(resp, "\r\n\r\n")

	var s structpb.Struct
	require.NoError(t, protojson.Unmarshal([]byte(body), &s))
	assert.Equal(t, float64(2), s.Fields["routes"].GetNumberValue())
	assert.Equal(t, float64(3), s.Fields["max_lines"].GetNumberValue())
	assert.GreaterOrEqual(t, s.Fields["accepted"].GetNumberValue(), float64(2))

	resp = roundTrip(t, e, "GET /_stats HTTP/1.1\r\nAccept: "+ContentTypeProtobuf+"\r\n\r\n")
	require.Contains(t, resp, "Content-Type: "+ContentTypeProtobuf+"\r\n")
	_, body, _ = strings.Cut(resp, "\r\n\r\n")

	var bin structpb.Struct
	require.NoError(t, proto.Unmarshal([]byte(body), &bin))
	assert.Equal(t, float64(2), bin.Fields["routes"].GetNumberValue())
}

func TestEngineBindError(t *testing.T) {
	e := newTestEngine(t, Options{})
	defer e.Stop()

	port := e.Addr().(*net.TCPAddr).Port
	_, err := NewEngine(Options{Host: "127.0.0.1", Port: port})
	assert.Error(t, err)
}

func TestEngineStartTwiceAndLateRegistration(t *testing.T) {
	e := newTestEngine(t, Options{})
	run(t, e)

	assert.True(t, strings.HasPrefix(roundTrip(t, e, get("/")), "HTTP/1.x 404"))

	assert.ErrorIs(t, e.Start(), ErrAlreadyStarted)
	assert.Panics(t, func() {
		e.GET("/late", func(*http.Request, *http.Response) {})
	})
}

func TestEngineStopBeforeStart(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Stop())
	assert.NoError(t, e.Start())
}

func TestStatsString(t *testing.T) {
	s := Stats{Lines: 1, MaxLines: 4, Rejected: 2}
	assert.Contains(t, s.String(), "Lines:       1 / 4")
	assert.Contains(t, s.String(), "Rejected:    2")
}
