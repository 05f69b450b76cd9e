package device

import (
	"github.com/rapiduino/rapiduino-go/pkg/log"
	"github.com/rapiduino/rapiduino-go/pkg/version"
	"github.com/rapiduino/rapiduino-go/pkg/wire"
)

// Observer receives exchange outcomes and registry occupancy.
// pkg/metrics provides the Prometheus implementation.
type Observer interface {
	wire.Observer
	ObserveRegistry(ownedPins, components int)
}

type options struct {
	logger     log.Logger
	connID     string
	port       string
	board      string
	minVersion version.Firmware
	observer   Observer
}

func defaultOptions() options {
	return options{minVersion: version.DefaultMin}
}

// Option configures a Device.
type Option func(*options)

// WithLogger enables protocol logging for the device and its codec.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConnectionID sets the ID stamped on log events. A random UUID is
// used when unset.
func WithConnectionID(id string) Option {
	return func(o *options) { o.connID = id }
}

// WithPortName records the serial port address in log events.
func WithPortName(name string) Option {
	return func(o *options) { o.port = name }
}

// WithBoardName records the board table name in log events.
func WithBoardName(name string) Option {
	return func(o *options) { o.board = name }
}

// WithMinVersion sets the minimum firmware version accepted by the
// handshake. Defaults to version.DefaultMin.
func WithMinVersion(v version.Firmware) Option {
	return func(o *options) { o.minVersion = v }
}

// WithMetrics attaches an observer for exchanges and registry occupancy.
func WithMetrics(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}
