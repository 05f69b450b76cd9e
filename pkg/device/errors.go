package device

import (
	"errors"
	"fmt"

	"github.com/rapiduino/rapiduino-go/pkg/version"
	"github.com/rapiduino/rapiduino-go/pkg/wire"
)

// Validation errors. They are returned before any byte is sent.
var (
	ErrInvalidPinNumber = errors.New("invalid pin number")
	ErrReservedPin      = errors.New("pin is reserved")
	ErrInvalidMode      = errors.New("invalid pin mode")
	ErrInvalidState     = errors.New("invalid pin state")
	ErrRange            = errors.New("value out of range")
	ErrNotAnalogPin     = errors.New("pin does not support analog input")
	ErrNotPwmPin        = errors.New("pin does not support pwm output")
)

// Ownership errors, returned by the pin registry.
var (
	ErrProtectedPin               = errors.New("pin is registered to another component")
	ErrPinAlreadyRegistered       = errors.New("pin already registered")
	ErrComponentAlreadyRegistered = errors.New("component already registered")
	ErrPinDoesNotExist            = errors.New("pin does not exist")
	ErrEmptyToken                 = errors.New("empty owner token")
)

// Lifecycle errors.
var (
	// ErrFirmwareIncompatible is returned by New and Open when the handshake
	// fails. The error is a *version.IncompatibleError.
	ErrFirmwareIncompatible = version.ErrIncompatible

	// ErrClosed is returned by operations on a closed Device.
	ErrClosed = errors.New("device closed")
)

// PinError reports a pin number or capability problem.
type PinError struct {
	Op  string
	Pin int
	Err error
}

func (e *PinError) Error() string {
	return fmt.Sprintf("%s pin %d: %v", e.Op, e.Pin, e.Err)
}

func (e *PinError) Unwrap() error { return e.Err }

// ValueError reports an invalid mode, state or analog value.
type ValueError struct {
	Op    string
	Pin   int
	Value int
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s pin %d: %v: %d", e.Op, e.Pin, e.Err, e.Value)
}

func (e *ValueError) Unwrap() error { return e.Err }

// OwnershipError reports a pin that belongs to another token.
type OwnershipError struct {
	Op    string
	Pin   int
	Owner Token
	Err   error
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s pin %d: %v (owner %s)", e.Op, e.Pin, e.Err, e.Owner)
}

func (e *OwnershipError) Unwrap() error { return e.Err }

// ComponentError reports a registration problem for a whole token.
type ComponentError struct {
	Token Token
	Pins  []int
	Err   error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("register %s: %v (owns %v)", e.Token, e.Err, e.Pins)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// Kind returns a short name for err, used in protocol logs and by the HTTP
// bridge. It returns "" for nil and "internal" for unknown errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPinNumber):
		return "invalid_pin_number"
	case errors.Is(err, ErrReservedPin):
		return "reserved_pin"
	case errors.Is(err, ErrInvalidMode):
		return "invalid_mode"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrRange):
		return "range"
	case errors.Is(err, ErrNotAnalogPin):
		return "not_analog_pin"
	case errors.Is(err, ErrNotPwmPin):
		return "not_pwm_pin"
	case errors.Is(err, ErrProtectedPin):
		return "protected_pin"
	case errors.Is(err, ErrPinAlreadyRegistered):
		return "pin_already_registered"
	case errors.Is(err, ErrComponentAlreadyRegistered):
		return "component_already_registered"
	case errors.Is(err, ErrPinDoesNotExist):
		return "pin_does_not_exist"
	case errors.Is(err, ErrEmptyToken):
		return "empty_token"
	case errors.Is(err, ErrFirmwareIncompatible):
		return "firmware_incompatible"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	if k := wire.Kind(err); k != "" {
		return k
	}
	return "internal"
}
