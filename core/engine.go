package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/searchktools/hermit-server/core/http"
	"github.com/searchktools/hermit-server/core/logger"
	"github.com/searchktools/hermit-server/core/pools"
	"github.com/searchktools/hermit-server/core/router"
	"github.com/searchktools/hermit-server/core/sockopt"
	"github.com/sirupsen/logrus"
)

// Options configures an Engine
type Options struct {
	Host string
	Port int

	// MaxLines caps the number of lines; <= 0 means twice the CPU count.
	MaxLines int

	// StreamTimeout is the read/write deadline of each connection; 0 uses
	// pools.DefaultStreamTimeout.
	StreamTimeout time.Duration

	Logger logrus.Ext1FieldLogger
}

// Engine owns the listening socket and hands each accepted connection to a
// line pool. Routes must be registered before Start.
type Engine struct {
	listener net.Listener
	muxer    *router.Muxer
	pool     *pools.LinePool
	log      logrus.Ext1FieldLogger

	running atomic.Bool
	stopped atomic.Bool

	stats struct {
		accepted       atomic.Uint64
		served         atomic.Uint64
		notFound       atomic.Uint64
		badRequests    atomic.Uint64
		emptyResponses atomic.Uint64
	}
}

// NewEngine binds the listening socket. A bind failure is fatal: the engine
// cannot serve without it.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = pools.DefaultStreamTimeout
	}
	log := logger.OrDiscard(opts.Logger)

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	e := &Engine{
		listener: ln,
		muxer:    router.NewMuxer(log),
		log:      log,
	}
	e.pool = pools.NewLinePool(opts.MaxLines, e.newStreamHandler,
		pools.WithLogger(log),
		pools.WithStreamTimeout(opts.StreamTimeout),
	)

	log.Infof("server created @ %s", ln.Addr())
	return e, nil
}

// Add registers fn for (method, path)
func (e *Engine) Add(method http.Method, path string, fn router.HandlerFunc) *router.Handler {
	return e.muxer.Add(method, path, fn)
}

// GET registers a GET route
func (e *Engine) GET(path string, fn router.HandlerFunc) *router.Handler {
	return e.muxer.Add(http.GET, path, fn)
}

// POST registers a POST route
func (e *Engine) POST(path string, fn router.HandlerFunc) *router.Handler {
	return e.muxer.Add(http.POST, path, fn)
}

// PUT registers a PUT route
func (e *Engine) PUT(path string, fn router.HandlerFunc) *router.Handler {
	return e.muxer.Add(http.PUT, path, fn)
}

// DELETE registers a DELETE route
func (e *Engine) DELETE(path string, fn router.HandlerFunc) *router.Handler {
	return e.muxer.Add(http.DELETE, path, fn)
}

// Filter starts a predicate chain; see router.Muxer.Filter.
func (e *Engine) Filter(p router.Predicate) *router.FilterChain {
	return e.muxer.Filter(p)
}

// ServeStatic registers every file under dir as a GET route below prefix.
func (e *Engine) ServeStatic(prefix, dir string) (int, error) {
	return e.muxer.ServeStatic(prefix, dir)
}

// Muxer returns the engine's muxer
func (e *Engine) Muxer() *router.Muxer {
	return e.muxer
}

// Addr returns the bound address.
func (e *Engine) Addr() net.Addr {
	return e.listener.Addr()
}

// Start accepts connections until Stop is called (returning nil) or accept
// fails (returning the error). Handlers never run on this goroutine.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.muxer.Freeze()
	defer e.pool.Close()

	e.muxer.Trie().Walk(func(path string, method http.Method) {
		e.log.Debugf("route %s %s", method, path)
	})
	e.log.WithField("max_lines", e.pool.MaxLines()).Info("server start listening")

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if e.stopped.Load() {
				e.log.Info("server stopped")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		e.stats.accepted.Add(1)
		e.log.Tracef("incoming connection from %s", conn.RemoteAddr())
		if err := sockopt.Tune(conn); err != nil {
			e.log.Debugf("failed to tune socket: %v", err)
		}
		// rejections are logged by the pool
		e.pool.Handle(conn)
	}
}

// Stop closes the listener. Start returns once in-flight connections are done.
func (e *Engine) Stop() error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}
	return e.listener.Close()
}

// newStreamHandler builds one line's connection handler. Each line owns its
// read buffer.
func (e *Engine) newStreamHandler() pools.StreamHandler {
	r := bufio.NewReaderSize(nil, http.MaxHeaderLineLength)
	return func(conn net.Conn) error {
		r.Reset(conn)
		defer r.Reset(nil)
		return e.serveConn(conn, r)
	}
}

func (e *Engine) serveConn(conn net.Conn, r *bufio.Reader) error {
	defer conn.Close()

	req, err := http.ReadRequest(r)
	if err != nil {
		if isMalformed(err) {
			e.stats.badRequests.Add(1)
			res := http.NewResponse(conn)
			res.SetHeader(http.HeaderConnection, "close")
			if rerr := res.Error(400, "Bad Request"); rerr != nil {
				e.log.Debugf("failed to respond 400: %v", rerr)
			}
			linger(conn, r)
		}
		return fmt.Errorf("read request: %w", err)
	}
	e.log.Infof("%s %s", req.Method, req.Path)

	res := http.NewResponse(conn)
	res.SetHeader(http.HeaderConnection, "close")

	if h := e.muxer.Resolve(req); h != nil {
		h.Serve(req, res)
		if !res.Responded() {
			e.stats.emptyResponses.Add(1)
			res.SetStatus(500, "Empty Response")
			err = res.Respond([]byte("Empty Response"))
		}
	} else {
		e.stats.notFound.Add(1)
		err = res.Error(404, "Not Found")
	}
	e.stats.served.Add(1)

	linger(conn, r)
	return err
}

func isMalformed(err error) bool {
	return errors.Is(err, http.ErrMalformedRequest) ||
		errors.Is(err, http.ErrInvalidMethod) ||
		errors.Is(err, http.ErrHeaderTooLong)
}

// linger half-closes conn and discards what the peer still sends until it
// closes its side or lingerTimeout passes.
func linger(conn net.Conn, r *bufio.Reader) {
	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}
	conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(r, maxLingerBytes))
}
