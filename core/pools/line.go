package pools

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/hermit-server/core/logger"
	"github.com/sirupsen/logrus"
)

const (
	// LineBufferSize is the handoff channel capacity of every line.
	LineBufferSize = 2

	// DefaultStreamTimeout is the read/write deadline applied to each
	// connection before its handler runs.
	DefaultStreamTimeout = 10 * time.Second
)

var (
	ErrLineBusy     = errors.New("line busy")
	ErrDisconnected = errors.New("line disconnected")
)

// StreamHandler consumes one connection. It runs on the line's goroutine.
type StreamHandler func(conn net.Conn) error

// Line is one long-lived goroutine fed through a bounded channel. Connections
// are handled strictly in the order they were sent.
type Line struct {
	id      int
	conns   chan net.Conn // nil is the shutdown sentinel
	done    chan struct{}
	handle  StreamHandler
	timeout time.Duration
	log     logrus.Ext1FieldLogger

	mu        sync.Mutex
	dead      bool
	closeOnce sync.Once
	served    atomic.Uint64
}

// NewLine starts a line running handle. timeout <= 0 disables deadlines.
func NewLine(id int, handle StreamHandler, timeout time.Duration, log logrus.Ext1FieldLogger) *Line {
	l := &Line{
		id:      id,
		conns:   make(chan net.Conn, LineBufferSize),
		done:    make(chan struct{}),
		handle:  handle,
		timeout: timeout,
		log:     logger.OrDiscard(log).WithField("line", id),
	}
	go l.run()
	return l
}

func (l *Line) run() {
	defer l.retire()

	for conn := range l.conns {
		if conn == nil {
			return
		}
		if !l.serve(conn) {
			return
		}
	}
}

// serve runs the handler on conn. A panicking handler retires the line.
func (l *Line) serve(conn net.Conn) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("stream handler panicked, retiring line: %v", r)
			conn.Close()
			ok = false
		}
	}()

	if l.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(l.timeout)); err != nil {
			l.log.Debugf("failed to set stream deadline: %v", err)
		}
	}
	if err := l.handle(conn); err != nil {
		l.log.Debugf("stream handler: %v", err)
	}
	l.served.Add(1)
	return true
}

// retire marks the line dead and closes whatever is still queued.
func (l *Line) retire() {
	l.mu.Lock()
	l.dead = true
	close(l.done)
	l.mu.Unlock()

	for {
		select {
		case conn := <-l.conns:
			if conn != nil {
				conn.Close()
			}
		default:
			return
		}
	}
}

// Send hands conn to the line without blocking. On error the caller still
// owns conn: ErrLineBusy means try another line, ErrDisconnected means this
// line is gone for good.
func (l *Line) Send(conn net.Conn) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dead {
		return ErrDisconnected
	}
	select {
	case l.conns <- conn:
		return nil
	default:
		return ErrLineBusy
	}
}

// Close asks the line to exit once its queued connections are handled and
// waits for its goroutine to return.
func (l *Line) Close() {
	l.closeOnce.Do(func() {
		select {
		case l.conns <- nil:
		case <-l.done:
		}
	})
	<-l.done
}

// Alive reports whether the line's goroutine is still running.
func (l *Line) Alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *Line) ID() int { return l.id }

// Served returns the number of connections handled so far.
func (l *Line) Served() uint64 { return l.served.Load() }
