package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rapiduino/rapiduino-go/pkg/log"
)

// MaxLogFrameDataSize bounds the bytes copied into frame log events.
// Frames on this protocol are at most a few bytes; the bound only
// protects against a misbehaving transport.
const MaxLogFrameDataSize = 64

// Observer receives the outcome of every exchange that reached the transport.
// Argument errors are rejected before the exchange and are not observed.
type Observer interface {
	ObserveExchange(cmd Command, d time.Duration, err error)
}

// Codec performs request/response exchanges over a byte stream.
// A Codec allows only one exchange in flight at a time.
type Codec struct {
	rw io.ReadWriter
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
	port   string

	observer Observer
}

// NewCodec creates a codec on top of rw.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw}
}

// SetLogger configures protocol logging for this codec.
// Pass nil to disable logging.
func (c *Codec) SetLogger(logger log.Logger, connID, port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
	c.connID = connID
	c.port = port
}

// SetObserver configures an exchange observer, typically metrics.
// Pass nil to disable.
func (c *Codec) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Encode builds the request frame for cmd. It fails with an ArgumentError
// if the argument count or any argument value does not fit the command.
func Encode(cmd Command, args ...int) ([]byte, error) {
	if len(args) != cmd.ArgCount {
		return nil, &ArgumentError{
			Command: cmd.Name,
			Index:   -1,
			Reason:  fmt.Sprintf("expected %d arguments, got %d", cmd.ArgCount, len(args)),
		}
	}

	frame := make([]byte, 1, cmd.RequestLen())
	frame[0] = cmd.Opcode
	for i, v := range args {
		if v < 0 || v > cmd.ArgWidth.Max() {
			return nil, &ArgumentError{
				Command: cmd.Name,
				Index:   i,
				Value:   v,
				Reason:  fmt.Sprintf("out of range 0-%d", cmd.ArgWidth.Max()),
			}
		}
		frame = appendValue(frame, cmd.ArgWidth, v)
	}
	return frame, nil
}

// Decode splits a response payload into values. data must be exactly
// cmd.ResponseLen() bytes long.
func Decode(cmd Command, data []byte) ([]int, error) {
	if len(data) != cmd.ResponseLen() {
		return nil, &ReceiveError{Command: cmd.Name, Want: cmd.ResponseLen(), Got: len(data)}
	}

	values := make([]int, 0, cmd.RespCount)
	step := int(cmd.RespWidth)
	for off := 0; off < len(data); off += step {
		switch cmd.RespWidth {
		case Uint16:
			values = append(values, int(binary.BigEndian.Uint16(data[off:])))
		default:
			values = append(values, int(data[off]))
		}
	}
	return values, nil
}

func appendValue(b []byte, w Width, v int) []byte {
	if w == Uint16 {
		return binary.BigEndian.AppendUint16(b, uint16(v))
	}
	return append(b, byte(v))
}

// ProcessCommand performs one exchange: it encodes args, writes the frame,
// and reads and decodes the response. Commands without a response return an
// empty slice without reading.
func (c *Codec) ProcessCommand(cmd Command, args ...int) ([]int, error) {
	frame, err := Encode(cmd, args...)
	if err != nil {
		c.mu.Lock()
		c.logError(cmd, err)
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	values, err := c.exchange(cmd, frame, args, start)
	if c.observer != nil {
		c.observer.ObserveExchange(cmd, time.Since(start), err)
	}
	return values, err
}

func (c *Codec) exchange(cmd Command, frame []byte, args []int, start time.Time) ([]int, error) {
	n, werr := c.rw.Write(frame)
	c.logFrame(cmd, log.DirectionOut, frame[:clamp(n, len(frame))], len(frame))
	if werr != nil || n != len(frame) {
		err := &SendError{Command: cmd.Name, Want: len(frame), Got: n, Err: werr}
		c.logError(cmd, err)
		return nil, err
	}

	if cmd.RespCount == 0 {
		d := time.Since(start)
		c.logCommand(cmd, log.DirectionOut, args, nil, &d)
		return []int{}, nil
	}
	c.logCommand(cmd, log.DirectionOut, args, nil, nil)

	buf := make([]byte, cmd.ResponseLen())
	got, rerr := readFull(c.rw, buf)
	c.logFrame(cmd, log.DirectionIn, buf[:got], len(buf))
	if got != len(buf) {
		err := &ReceiveError{Command: cmd.Name, Want: len(buf), Got: got, Err: rerr}
		c.logError(cmd, err)
		return nil, err
	}

	values, err := Decode(cmd, buf)
	if err != nil {
		return nil, err
	}
	d := time.Since(start)
	c.logCommand(cmd, log.DirectionIn, args, values, &d)
	return values, nil
}

// readFull reads until buf is full, the reader fails, or a read returns no
// data. Serial ports signal a read timeout with a zero-byte read.
func readFull(r io.Reader, buf []byte) (int, error) {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if err != nil {
			return got, err
		}
		if n == 0 {
			return got, nil
		}
	}
	return got, nil
}

func clamp(n, hi int) int {
	if n < 0 {
		return 0
	}
	if n > hi {
		return hi
	}
	return n
}

func category(cmd Command) log.Category {
	if cmd.IsControl() {
		return log.CategoryControl
	}
	return log.CategoryMessage
}

func (c *Codec) baseEvent(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		Port:         c.port,
	}
}

func (c *Codec) logFrame(cmd Command, dir log.Direction, data []byte, size int) {
	if c.logger == nil {
		return
	}
	ev := c.baseEvent(dir, log.LayerTransport, category(cmd))
	truncated := len(data) < size
	if len(data) > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
		truncated = true
	}
	ev.Frame = &log.FrameEvent{
		Size:      size,
		Data:      append([]byte(nil), data...),
		Truncated: truncated,
		Opcode:    cmd.Opcode,
	}
	c.logger.Log(ev)
}

func (c *Codec) logCommand(cmd Command, dir log.Direction, args, values []int, d *time.Duration) {
	if c.logger == nil {
		return
	}
	ev := c.baseEvent(dir, log.LayerWire, category(cmd))
	ev.Command = &log.CommandEvent{
		Opcode:   cmd.Opcode,
		Name:     cmd.Name,
		Args:     args,
		Values:   values,
		Duration: d,
	}
	c.logger.Log(ev)
}

func (c *Codec) logError(cmd Command, err error) {
	if c.logger == nil {
		return
	}
	ev := c.baseEvent(log.DirectionOut, log.LayerWire, log.CategoryError)
	ev.Error = &log.ErrorEventData{
		Layer:   log.LayerWire,
		Message: err.Error(),
		Kind:    Kind(err),
		Context: cmd.Name,
	}
	c.logger.Log(ev)
}
