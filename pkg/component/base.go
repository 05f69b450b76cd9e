package component

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/pin"
)

var (
	// ErrNotConnected is returned by I/O on a component without a device.
	ErrNotConnected = errors.New("component not connected")

	// ErrAlreadyConnected is returned by Connect on a connected component.
	ErrAlreadyConnected = errors.New("component already connected")

	// ErrOutOfRange is returned for a value outside the component's bounds.
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidBounds is returned when a bound setter would leave min >= max
	// or step outside the allowed limits.
	ErrInvalidBounds = errors.New("invalid bounds")
)

// Board is the device surface a component drives. *device.Device
// implements it.
type Board interface {
	Register(token device.Token, reqs ...pin.Requirement) error
	Deregister(token device.Token) []int

	PinMode(id int, mode pin.Mode, access device.Access) error
	DigitalRead(id int, access device.Access) (pin.State, error)
	DigitalWrite(id int, state pin.State, access device.Access) error
	AnalogRead(id int, access device.Access) (int, error)
	AnalogWrite(id, value int, access device.Access) error
}

var _ Board = (*device.Device)(nil)

// Base holds the registration state shared by all components.
// It is embedded by the concrete drivers.
type Base struct {
	mu    sync.Mutex
	token device.Token
	reqs  []pin.Requirement
	board Board
	setup func() error
}

// bind mints the token and records the pins and setup hook.
func (b *Base) bind(setup func() error, reqs ...pin.Requirement) {
	b.token = device.NewToken()
	b.reqs = reqs
	b.setup = setup
}

// Token returns the key the component registers its pins under.
func (b *Base) Token() device.Token {
	return b.token
}

// Requirements returns the pins the component claims on Connect.
func (b *Base) Requirements() []pin.Requirement {
	return append([]pin.Requirement(nil), b.reqs...)
}

// Connected reports whether the component is bound to a board.
func (b *Base) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.board != nil
}

// Connect registers the component's pins on board and runs its setup.
// If setup fails the pins are released again.
func (b *Base) Connect(board Board) error {
	b.mu.Lock()
	if b.board != nil {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	if err := board.Register(b.token, b.reqs...); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}
	b.board = board
	b.mu.Unlock()

	if b.setup == nil {
		return nil
	}
	if err := b.setup(); err != nil {
		b.Disconnect()
		return fmt.Errorf("setup: %w", err)
	}
	return nil
}

// Disconnect releases the component's pins. It is a no-op when the
// component is not connected.
func (b *Base) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.board == nil {
		return
	}
	b.board.Deregister(b.token)
	b.board = nil
}

func (b *Base) bound() (Board, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.board == nil {
		return nil, ErrNotConnected
	}
	return b.board, nil
}

func (b *Base) pinMode(id int, mode pin.Mode) error {
	board, err := b.bound()
	if err != nil {
		return err
	}
	return board.PinMode(id, mode, b.token)
}

func (b *Base) digitalRead(id int) (pin.State, error) {
	board, err := b.bound()
	if err != nil {
		return pin.Low, err
	}
	return board.DigitalRead(id, b.token)
}

func (b *Base) digitalWrite(id int, state pin.State) error {
	board, err := b.bound()
	if err != nil {
		return err
	}
	return board.DigitalWrite(id, state, b.token)
}

func (b *Base) analogWrite(id, value int) error {
	board, err := b.bound()
	if err != nil {
		return err
	}
	return board.AnalogWrite(id, value, b.token)
}
