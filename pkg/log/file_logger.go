package log

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a CBOR stream. Write failures never reach
// the device; they are counted and visible through Dropped.
type FileLogger struct {
	mu      sync.Mutex
	out     io.WriteCloser
	enc     *cbor.Encoder
	closed  bool
	dropped uint64
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return NewStreamLogger(f), nil
}

// NewStreamLogger writes to out, such as a lumberjack rotator. Each event
// is a complete CBOR item, so a stream split between events by rotation
// stays readable file by file.
func NewStreamLogger(out io.WriteCloser) *FileLogger {
	return &FileLogger{out: out, enc: NewEncoder(out)}
}

// Log implements Logger. Events logged after Close are dropped silently.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped++
	}
}

// Dropped returns the number of events that failed to encode or write.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the underlying writer. Later calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.out.Close()
}

var _ Logger = (*FileLogger)(nil)
