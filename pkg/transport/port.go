package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Default serial settings used by the companion firmware.
const (
	DefaultBaudRate = 115200
	DefaultTimeout  = time.Second

	// DefaultSettleDelay covers the bootloader run that follows the DTR
	// reset most boards perform when the port is opened.
	DefaultSettleDelay = 2 * time.Second
)

// ErrNoAddress is returned by Open when Config.Address is empty.
var ErrNoAddress = errors.New("serial port address required")

// Port is the byte transport consumed by the wire codec.
// A Read that times out returns 0, nil.
type Port interface {
	io.ReadWriteCloser
}

// Config describes how to open a serial port.
type Config struct {
	// Address is the OS device name, e.g. /dev/ttyACM0 or COM3.
	Address string

	// BaudRate defaults to 115200.
	BaudRate int

	// Timeout bounds each read. Defaults to one second.
	Timeout time.Duration

	// SettleDelay is waited after opening, before the input buffer is
	// flushed. Zero disables the wait.
	SettleDelay time.Duration
}

// DefaultConfig returns the configuration expected by the firmware for the
// given port address.
func DefaultConfig(address string) Config {
	return Config{
		Address:     address,
		BaudRate:    DefaultBaudRate,
		Timeout:     DefaultTimeout,
		SettleDelay: DefaultSettleDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Mode returns the serial line settings for c: 8 data bits, no parity,
// one stop bit.
func (c Config) Mode() *serial.Mode {
	c = c.withDefaults()
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// SerialPort is a Port backed by a go.bug.st/serial port.
type SerialPort struct {
	serial.Port
	address string
}

// Address returns the device name the port was opened with.
func (p *SerialPort) Address() string {
	return p.address
}

// openSerial is replaced in tests.
var openSerial = serial.Open

// sleep is replaced in tests.
var sleep = time.Sleep

// Open opens and configures the serial port described by cfg.
func Open(cfg Config) (*SerialPort, error) {
	if cfg.Address == "" {
		return nil, ErrNoAddress
	}
	cfg = cfg.withDefaults()

	p, err := openSerial(cfg.Address, cfg.Mode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Address, err)
	}

	if err := p.SetReadTimeout(cfg.Timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Address, err)
	}

	if cfg.SettleDelay > 0 {
		sleep(cfg.SettleDelay)
		if err := p.ResetInputBuffer(); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("flush %s: %w", cfg.Address, err)
		}
	}

	return &SerialPort{Port: p, address: cfg.Address}, nil
}

// Compile-time interface satisfaction check.
var _ Port = (*SerialPort)(nil)
