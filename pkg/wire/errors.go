package wire

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to test a returned error against them.
var (
	// ErrArgument indicates the arguments do not match the command's shape.
	ErrArgument = errors.New("invalid command argument")

	// ErrSend indicates the transport did not accept the whole request frame.
	ErrSend = errors.New("send failed")

	// ErrReceive indicates the firmware returned fewer bytes than expected.
	ErrReceive = errors.New("receive failed")
)

// ArgumentError is returned before any byte is sent when the arguments do
// not fit the command.
type ArgumentError struct {
	Command string
	Index   int // -1 when the count is wrong
	Value   int
	Reason  string
}

func (e *ArgumentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("%s: argument %d (%d) %s", e.Command, e.Index, e.Value, e.Reason)
}

// Is reports whether target is ErrArgument.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrArgument
}

// SendError reports a write that did not transfer the whole frame.
type SendError struct {
	Command string
	Want    int
	Got     int
	Err     error // underlying transport error, may be nil
}

func (e *SendError) Error() string {
	msg := fmt.Sprintf("%s: sent %d of %d bytes", e.Command, e.Got, e.Want)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrSend.
func (e *SendError) Is(target error) bool {
	return target == ErrSend
}

// Unwrap returns the underlying transport error.
func (e *SendError) Unwrap() error {
	return e.Err
}

// ReceiveError reports a response shorter than the command declares.
type ReceiveError struct {
	Command string
	Want    int
	Got     int
	Err     error // underlying transport error, may be nil
}

func (e *ReceiveError) Error() string {
	msg := fmt.Sprintf("%s: received %d of %d bytes", e.Command, e.Got, e.Want)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrReceive.
func (e *ReceiveError) Is(target error) bool {
	return target == ErrReceive
}

// Unwrap returns the underlying transport error.
func (e *ReceiveError) Unwrap() error {
	return e.Err
}

// Kind returns a short machine-readable name for a codec error,
// or "" if err is not one.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrArgument):
		return "argument"
	case errors.Is(err, ErrSend):
		return "send"
	case errors.Is(err, ErrReceive):
		return "receive"
	default:
		return ""
	}
}
