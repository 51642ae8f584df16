package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is the number of formatted lines the queue holds before
// callers start to block.
const DefaultBufferSize = 64

// Logger is a leveled logger whose output is drained by a dedicated writer
// goroutine through a bounded queue.
type Logger struct {
	*logrus.Logger
	out *asyncWriter
}

var _ logrus.Ext1FieldLogger = (*Logger)(nil)

// New creates a logger writing to w. bufSize <= 0 uses DefaultBufferSize.
func New(w io.Writer, bufSize int, level logrus.Level) *Logger {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	out := newAsyncWriter(w, bufSize)

	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&LineFormatter{})
	l.SetLevel(level)

	return &Logger{Logger: l, out: out}
}

// Close flushes queued lines and stops the writer goroutine. Lines logged
// after Close are dropped.
func (l *Logger) Close() error {
	l.out.Close()
	return nil
}

// Discard returns a logger that drops everything. Used when a component is
// built without an injected logger.
func Discard() logrus.Ext1FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l logrus.Ext1FieldLogger) logrus.Ext1FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}

// LineFormatter renders "[LEVEL] message key=value ..." with fields sorted by key.
type LineFormatter struct{}

// Format implements logrus.Formatter
func (f *LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteString("] ")
	b.WriteString(e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// asyncWriter hands lines to a single writer goroutine. A nil line is the
// shutdown sentinel.
type asyncWriter struct {
	dst    io.Writer
	lines  chan []byte
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func newAsyncWriter(dst io.Writer, size int) *asyncWriter {
	w := &asyncWriter{
		dst:   dst,
		lines: make(chan []byte, size),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)

	for line := range w.lines {
		if line == nil {
			return
		}
		if _, err := w.dst.Write(line); err != nil {
			fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		}
	}
}

// Write queues a copy of p. It blocks only while the queue is full.
func (w *asyncWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return len(p), nil
	}

	line := make([]byte, len(p))
	copy(line, p)
	w.lines <- line
	return len(p), nil
}

func (w *asyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.lines <- nil
	<-w.done
}
