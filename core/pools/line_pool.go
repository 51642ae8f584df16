package pools

import (
	"errors"
	"net"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/searchktools/hermit-server/core/logger"
	"github.com/searchktools/hermit-server/core/sockopt"
	"github.com/sirupsen/logrus"
)

// ErrAtCapacity is returned by Handle when every line is busy and no more
// lines may be created. The connection has already been shut down.
var ErrAtCapacity = errors.New("out of capacity to handle incoming TCP stream")

// LinePool distributes connections over a capped, lazily grown list of
// lines. Handle and Close must be called from a single goroutine (the
// accept loop); Stats may be read from anywhere.
type LinePool struct {
	lines      []*Line
	maxLines   int
	newHandler func() StreamHandler
	timeout    time.Duration
	log        logrus.Ext1FieldLogger
	nextID     int

	stats struct {
		lines      atomic.Int64
		created    atomic.Uint64
		dispatched atomic.Uint64
		rejected   atomic.Uint64
		pruned     atomic.Uint64
	}
}

// Option configures a LinePool
type Option func(*LinePool)

// WithLogger sets the pool's logger
func WithLogger(log logrus.Ext1FieldLogger) Option {
	return func(p *LinePool) {
		p.log = log
	}
}

// WithStreamTimeout sets the per-connection deadline of every line
func WithStreamTimeout(d time.Duration) Option {
	return func(p *LinePool) {
		p.timeout = d
	}
}

// DefaultMaxLines is twice the number of CPUs.
func DefaultMaxLines() int {
	return 2 * runtime.NumCPU()
}

// NewLinePool creates an empty pool. newHandler is called once per line to
// build its stream handler. maxLines <= 0 uses DefaultMaxLines.
func NewLinePool(maxLines int, newHandler func() StreamHandler, opts ...Option) *LinePool {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines()
	}

	p := &LinePool{
		maxLines:   maxLines,
		newHandler: newHandler,
		timeout:    DefaultStreamTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrDiscard(p.log)
	return p
}

// Handle delivers conn to the first line that accepts it, growing the pool
// when every existing line is busy. Dead lines are pruned on the way. When
// the pool is full and every line is busy, conn is shut down and
// ErrAtCapacity is returned.
func (p *LinePool) Handle(conn net.Conn) error {
	idx := 0
	for {
		if idx == len(p.lines) {
			if len(p.lines) >= p.maxLines {
				return p.reject(conn)
			}
			p.addLine()
		}

		err := p.lines[idx].Send(conn)
		switch {
		case err == nil:
			p.stats.dispatched.Add(1)
			return nil
		case errors.Is(err, ErrLineBusy):
			p.log.Tracef("line#%d busy", idx)
			idx++
		case errors.Is(err, ErrDisconnected):
			p.removeLine(idx)
		}
	}
}

func (p *LinePool) reject(conn net.Conn) error {
	p.stats.rejected.Add(1)
	p.log.WithField("remote", conn.RemoteAddr()).Warn(ErrAtCapacity.Error())
	if err := sockopt.Shutdown(conn); err != nil {
		p.log.Errorf("failed to shut down over capacity TCP stream: %v", err)
	}
	return ErrAtCapacity
}

func (p *LinePool) addLine() {
	l := NewLine(p.nextID, p.newHandler(), p.timeout, p.log)
	p.nextID++
	p.lines = append(p.lines, l)
	p.stats.created.Add(1)
	p.stats.lines.Store(int64(len(p.lines)))
	p.log.Debugf("new line added. line count:%d", len(p.lines))
}

func (p *LinePool) removeLine(idx int) {
	l := p.lines[idx]
	l.Close()
	p.lines = append(p.lines[:idx], p.lines[idx+1:]...)
	p.stats.pruned.Add(1)
	p.stats.lines.Store(int64(len(p.lines)))
	p.log.Debugf("line#%d removed due to disconnection", idx)
}

// Len returns the current number of lines.
func (p *LinePool) Len() int {
	return int(p.stats.lines.Load())
}

// MaxLines returns the configured cap.
func (p *LinePool) MaxLines() int {
	return p.maxLines
}

// Close tears every line down, waiting for in-flight connections to finish.
func (p *LinePool) Close() {
	for _, l := range p.lines {
		l.Close()
	}
	p.lines = nil
	p.stats.lines.Store(0)
}

// Stats returns pool statistics
func (p *LinePool) Stats() LinePoolStats {
	return LinePoolStats{
		Lines:      p.Len(),
		MaxLines:   p.maxLines,
		Created:    p.stats.created.Load(),
		Dispatched: p.stats.dispatched.Load(),
		Rejected:   p.stats.rejected.Load(),
		Pruned:     p.stats.pruned.Load(),
	}
}

// LinePoolStats contains pool statistics
type LinePoolStats struct {
	Lines      int
	MaxLines   int
	Created    uint64
	Dispatched uint64
	Rejected   uint64
	Pruned     uint64
}
