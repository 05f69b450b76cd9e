package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/log"
	"github.com/rapiduino/rapiduino-go/pkg/pin"
	"github.com/rapiduino/rapiduino-go/pkg/transport"
	"github.com/rapiduino/rapiduino-go/pkg/version"
	"github.com/rapiduino/rapiduino-go/pkg/wire"
)

// Device lifecycle states, as recorded in protocol logs.
const (
	StateOpen   = "OPEN"
	StateReady  = "READY"
	StateFailed = "FAILED"
	StateClosed = "CLOSED"
)

// Device is one board connection. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	port     transport.Port
	codec    *wire.Codec
	pins     []pin.Pin
	registry registry
	firmware version.Firmware
	closed   bool

	opts options
}

// New wraps an open port, performs the version handshake and returns a
// ready Device. pins must be indexed by pin ID. On failure the port is left
// open; the caller owns it.
func New(port transport.Port, pins []pin.Pin, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.connID == "" {
		o.connID = uuid.NewString()
	}

	for i, p := range pins {
		if p.ID != i {
			return nil, fmt.Errorf("pin table: entry %d has ID %d", i, p.ID)
		}
	}

	d := &Device{
		port:     port,
		codec:    wire.NewCodec(port),
		pins:     append([]pin.Pin(nil), pins...),
		registry: newRegistry(),
		opts:     o,
	}
	if o.logger != nil {
		d.codec.SetLogger(o.logger, o.connID, o.port)
	}
	if o.observer != nil {
		d.codec.SetObserver(o.observer)
		o.observer.ObserveRegistry(0, 0)
	}

	d.logDeviceState("", StateOpen, "")
	if err := d.handshake(); err != nil {
		d.logDeviceState(StateOpen, StateFailed, err.Error())
		return nil, err
	}
	d.logDeviceState(StateOpen, StateReady, "firmware "+d.firmware.String())
	return d, nil
}

// openPort is replaced in tests.
var openPort = func(cfg transport.Config) (transport.Port, error) {
	return transport.Open(cfg)
}

// Open opens the serial port in cfg, builds the pin table for boardName and
// returns a ready Device. The port is closed again if construction fails.
func Open(cfg transport.Config, boardName string, opts ...Option) (*Device, error) {
	b, err := board.Lookup(boardName)
	if err != nil {
		return nil, err
	}

	p, err := openPort(cfg)
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithPortName(cfg.Address), WithBoardName(b.Name)}, opts...)
	d, err := New(p, b.Pins(), opts...)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.Address, err)
	}
	return d, nil
}

func (d *Device) handshake() error {
	values, err := d.codec.ProcessCommand(wire.CmdVersion)
	if err != nil {
		return fmt.Errorf("version handshake: %w", err)
	}
	fw, err := version.FromValues(values)
	if err != nil {
		return fmt.Errorf("version handshake: %w", err)
	}
	if err := version.Check(fw, d.opts.minVersion); err != nil {
		return err
	}
	d.firmware = fw
	return nil
}

// Close closes the port. Further operations fail with ErrClosed.
// Closing twice is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.logDeviceState(StateReady, StateClosed, "")
	return d.port.Close()
}

// ConnectionID returns the ID stamped on this device's log events.
func (d *Device) ConnectionID() string {
	return d.opts.connID
}

// Firmware returns the version reported during the handshake.
func (d *Device) Firmware() version.Firmware {
	return d.firmware
}

// MinVersion returns the minimum firmware version the device was built with.
func (d *Device) MinVersion() version.Firmware {
	return d.opts.minVersion
}

// Pins returns a copy of the pin table.
func (d *Device) Pins() []pin.Pin {
	return append([]pin.Pin(nil), d.pins...)
}

// ---------------------------------------------------------------------------
// Control commands
// ---------------------------------------------------------------------------

// Poll sends a liveness probe and returns the firmware's reply.
func (d *Device) Poll() (int, error) {
	values, err := d.command(wire.CmdPoll)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// Parrot sends value and returns the firmware's echo.
func (d *Device) Parrot(value int) (int, error) {
	values, err := d.command(wire.CmdParrot, value)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// Version queries the firmware version.
func (d *Device) Version() (version.Firmware, error) {
	values, err := d.command(wire.CmdVersion)
	if err != nil {
		return version.Firmware{}, err
	}
	return version.FromValues(values)
}

func (d *Device) command(cmd wire.Command, args ...int) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.codec.ProcessCommand(cmd, args...)
}

// ---------------------------------------------------------------------------
// Pin I/O
// ---------------------------------------------------------------------------

// PinMode sets the mode of a pin.
func (d *Device) PinMode(id int, mode pin.Mode, access Access) error {
	const op = "pin_mode"
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPin(op, id); err != nil {
		return err
	}
	if !mode.IsValid() {
		return &ValueError{Op: op, Pin: id, Value: int(mode), Err: ErrInvalidMode}
	}
	if err := d.checkAccess(op, id, access); err != nil {
		return err
	}
	_, err := d.codec.ProcessCommand(wire.CmdPinMode, id, int(mode))
	return err
}

// DigitalRead returns the level of a pin. Any response other than 1 reads
// as Low.
func (d *Device) DigitalRead(id int, access Access) (pin.State, error) {
	const op = "digital_read"
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPin(op, id); err != nil {
		return pin.Low, err
	}
	if err := d.checkAccess(op, id, access); err != nil {
		return pin.Low, err
	}
	values, err := d.codec.ProcessCommand(wire.CmdDigitalRead, id)
	if err != nil {
		return pin.Low, err
	}
	if values[0] == 1 {
		return pin.High, nil
	}
	return pin.Low, nil
}

// DigitalWrite drives a pin Low or High.
func (d *Device) DigitalWrite(id int, state pin.State, access Access) error {
	const op = "digital_write"
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPin(op, id); err != nil {
		return err
	}
	if !state.IsValid() {
		return &ValueError{Op: op, Pin: id, Value: int(state), Err: ErrInvalidState}
	}
	if err := d.checkAccess(op, id, access); err != nil {
		return err
	}
	_, err := d.codec.ProcessCommand(wire.CmdDigitalWrite, id, int(state))
	return err
}

// AnalogRead samples an analog input pin.
func (d *Device) AnalogRead(id int, access Access) (int, error) {
	const op = "analog_read"
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPin(op, id); err != nil {
		return 0, err
	}
	if !d.pins[id].Analog {
		return 0, &PinError{Op: op, Pin: id, Err: ErrNotAnalogPin}
	}
	if err := d.checkAccess(op, id, access); err != nil {
		return 0, err
	}
	values, err := d.codec.ProcessCommand(wire.CmdAnalogRead, id)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// MaxAnalogWrite is the largest PWM duty value.
const MaxAnalogWrite = 255

// AnalogWrite sets the PWM duty (0-255) of a pin.
func (d *Device) AnalogWrite(id, value int, access Access) error {
	const op = "analog_write"
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPin(op, id); err != nil {
		return err
	}
	if value < 0 || value > MaxAnalogWrite {
		return &ValueError{Op: op, Pin: id, Value: value, Err: ErrRange}
	}
	if !d.pins[id].PWM {
		return &PinError{Op: op, Pin: id, Err: ErrNotPwmPin}
	}
	if err := d.checkAccess(op, id, access); err != nil {
		return err
	}
	_, err := d.codec.ProcessCommand(wire.CmdAnalogWrite, id, value)
	return err
}

// checkPin runs the range and reservation checks. d.mu must be held.
func (d *Device) checkPin(op string, id int) error {
	if d.closed {
		return ErrClosed
	}
	if id < 0 || id >= len(d.pins) {
		return &PinError{Op: op, Pin: id, Err: ErrInvalidPinNumber}
	}
	if d.pins[id].Reserved {
		return &PinError{Op: op, Pin: id, Err: ErrReservedPin}
	}
	return nil
}

// checkAccess runs the protection check. d.mu must be held.
func (d *Device) checkAccess(op string, id int, access Access) error {
	owner, ok := d.registry.owner(id)
	if !ok {
		return nil
	}
	if access != nil && access.permits(owner) {
		return nil
	}
	err := &OwnershipError{Op: op, Pin: id, Owner: owner, Err: ErrProtectedPin}
	d.logError(op, err)
	return err
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

func (d *Device) baseEvent(cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.opts.connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerDevice,
		Category:     cat,
		Port:         d.opts.port,
		Board:        d.opts.board,
	}
}

func (d *Device) logDeviceState(from, to, reason string) {
	if d.opts.logger == nil {
		return
	}
	ev := d.baseEvent(log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityDevice,
		OldState: from,
		NewState: to,
		Reason:   reason,
	}
	d.opts.logger.Log(ev)
}

func (d *Device) logPinState(id int, from, to string, token Token) {
	if d.opts.logger == nil {
		return
	}
	ev := d.baseEvent(log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityPin,
		OldState: from,
		NewState: to,
		Pin:      log.IntPtr(id),
		Token:    string(token),
	}
	d.opts.logger.Log(ev)
}

func (d *Device) logComponentState(token Token, from, to string, pins []int) {
	if d.opts.logger == nil {
		return
	}
	ev := d.baseEvent(log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityComponent,
		OldState: from,
		NewState: to,
		Reason:   fmt.Sprintf("pins %v", pins),
		Token:    string(token),
	}
	d.opts.logger.Log(ev)
}

func (d *Device) logError(op string, err error) {
	if d.opts.logger == nil {
		return
	}
	ev := d.baseEvent(log.CategoryError)
	ev.Error = &log.ErrorEventData{
		Layer:   log.LayerDevice,
		Message: err.Error(),
		Kind:    Kind(err),
		Context: op,
	}
	d.opts.logger.Log(ev)
}
