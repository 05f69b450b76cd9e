// Package transporttest provides an in-memory stand-in for the companion
// firmware, for tests that exercise the full host stack without a board.
package transporttest

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/rapiduino/rapiduino-go/pkg/transport"
	"github.com/rapiduino/rapiduino-go/pkg/wire"
)

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("sketch closed")

// Pin modes as the firmware understands them.
const (
	modeInput       = 0
	modeOutput      = 1
	modeInputPullup = 2
)

// Sketch simulates the firmware: it parses request frames as they are
// written and queues the responses for Read. A Read with nothing queued
// returns 0, nil like a serial read timeout.
//
// Unknown opcodes are dropped one byte at a time, the way the firmware
// skips bytes it cannot dispatch.
type Sketch struct {
	mu sync.Mutex

	version   [3]byte
	pollValue byte

	modes   map[int]int
	levels  map[int]int
	inputs  map[int]int
	analogs map[int]int
	pwm     map[int]int

	pending []byte
	out     []byte
	frames  [][]byte

	writeLimit int
	mute       bool
	closed     bool
}

// NewSketch returns a simulated firmware reporting version 1.0.0.
func NewSketch() *Sketch {
	return &Sketch{
		version:    [3]byte{1, 0, 0},
		pollValue:  1,
		modes:      make(map[int]int),
		levels:     make(map[int]int),
		inputs:     make(map[int]int),
		analogs:    make(map[int]int),
		pwm:        make(map[int]int),
		writeLimit: -1,
	}
}

// SetVersion changes the version reported by the version command.
func (s *Sketch) SetVersion(major, minor, patch byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = [3]byte{major, minor, patch}
}

// SetInput sets the level seen by digital_read on a pin not in OUTPUT mode.
func (s *Sketch) SetInput(pin, level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[pin] = level
}

// SetAnalog sets the value returned by analog_read for pin.
func (s *Sketch) SetAnalog(pin, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analogs[pin] = value
}

// LimitNextWrite makes the next Write accept only n bytes.
func (s *Sketch) LimitNextWrite(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLimit = n
}

// SetMute stops (or resumes) responses, simulating a board that went away.
func (s *Sketch) SetMute(mute bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mute = mute
}

// Mode returns the last mode set on pin and whether one was set.
func (s *Sketch) Mode(pin int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modes[pin]
	return m, ok
}

// Level returns the last digital level written to pin.
func (s *Sketch) Level(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pin]
}

// PWM returns the last analog_write value for pin.
func (s *Sketch) PWM(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pwm[pin]
}

// Frames returns copies of all request frames processed so far.
func (s *Sketch) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	for i, f := range s.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// FrameCount returns the number of request frames processed so far.
func (s *Sketch) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Write implements transport.Port.
func (s *Sketch) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	n := len(p)
	if s.writeLimit >= 0 {
		if s.writeLimit < n {
			n = s.writeLimit
		}
		s.writeLimit = -1
	}

	s.pending = append(s.pending, p[:n]...)
	s.dispatch()
	return n, nil
}

// Read implements transport.Port.
func (s *Sketch) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// Close implements transport.Port.
func (s *Sketch) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Sketch) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sketch) dispatch() {
	for len(s.pending) > 0 {
		cmd, ok := wire.Lookup(s.pending[0])
		if !ok {
			s.pending = s.pending[1:]
			continue
		}
		if len(s.pending) < cmd.RequestLen() {
			return
		}
		frame := append([]byte(nil), s.pending[:cmd.RequestLen()]...)
		s.pending = s.pending[cmd.RequestLen():]
		s.frames = append(s.frames, frame)

		resp := s.execute(cmd, frame[1:])
		if !s.mute {
			s.out = append(s.out, resp...)
		}
	}
}

func (s *Sketch) execute(cmd wire.Command, args []byte) []byte {
	switch cmd.Opcode {
	case wire.CmdPoll.Opcode:
		return []byte{s.pollValue}
	case wire.CmdParrot.Opcode:
		return []byte{args[0]}
	case wire.CmdVersion.Opcode:
		return s.version[:]
	case wire.CmdPinMode.Opcode:
		s.modes[int(args[0])] = int(args[1])
	case wire.CmdDigitalRead.Opcode:
		pin := int(args[0])
		if s.modes[pin] == modeOutput {
			return []byte{byte(s.levels[pin])}
		}
		if level, ok := s.inputs[pin]; ok {
			return []byte{byte(level)}
		}
		if s.modes[pin] == modeInputPullup {
			return []byte{1}
		}
		return []byte{0}
	case wire.CmdDigitalWrite.Opcode:
		s.levels[int(args[0])] = int(args[1])
	case wire.CmdAnalogRead.Opcode:
		return binary.BigEndian.AppendUint16(nil, uint16(s.analogs[int(args[0])]))
	case wire.CmdAnalogWrite.Opcode:
		s.pwm[int(args[0])] = int(args[1])
	}
	return nil
}

// Compile-time interface satisfaction check.
var _ transport.Port = (*Sketch)(nil)
