package log

import "time"

// Event is one protocol log record. Exactly one payload pointer is set.
// Integer CBOR keys keep long captures small.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"` // per-Device UUID
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	Port         string    `cbor:"6,keyasint,omitempty"`
	Board        string    `cbor:"7,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction is relative to the host: OUT goes to the firmware.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer names the part of the stack that emitted an event.
type Layer uint8

const (
	LayerTransport Layer = 0 // raw frames
	LayerWire      Layer = 1 // decoded commands
	LayerDevice    Layer = 2 // validation, registry and lifecycle
)

func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// Category separates pin traffic from link housekeeping.
type Category uint8

const (
	CategoryMessage Category = 0 // pin I/O commands
	CategoryControl Category = 1 // poll, parrot and version
	CategoryState   Category = 2
	CategoryError   Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent records the bytes of one request or response. Data holds what
// actually crossed the port, so a short write or read shows as Truncated
// with len(Data) < Size.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
	Opcode    uint8  `cbor:"4,keyasint"`
}

// CommandEvent records a decoded command. Values are set on the IN event.
// Duration is set on whichever event completes the exchange: the response,
// or the request for commands without one.
type CommandEvent struct {
	Opcode   uint8          `cbor:"1,keyasint"`
	Name     string         `cbor:"2,keyasint"`
	Args     []int          `cbor:"3,keyasint,omitempty"`
	Values   []int          `cbor:"4,keyasint,omitempty"`
	Duration *time.Duration `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent records a device lifecycle step or a registry change.
// OldState is empty for an entity's first state.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
	Pin      *int        `cbor:"5,keyasint,omitempty"`
	Token    string      `cbor:"6,keyasint,omitempty"`
}

// StateEntity is what a StateChangeEvent is about.
type StateEntity uint8

const (
	StateEntityDevice    StateEntity = 0 // OPEN, READY, CLOSED
	StateEntityPin       StateEntity = 1 // FREE, OWNED
	StateEntityComponent StateEntity = 2 // REGISTERED, DEREGISTERED
)

func (s StateEntity) String() string {
	switch s {
	case StateEntityDevice:
		return "DEVICE"
	case StateEntityPin:
		return "PIN"
	case StateEntityComponent:
		return "COMPONENT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData records a failed operation. Kind is the short error kind
// reported by device.Kind, such as "send" or "protected_pin"; Context is
// the operation name.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Kind    string `cbor:"3,keyasint,omitempty"`
	Context string `cbor:"4,keyasint,omitempty"`
}

// IntPtr returns a pointer to v, for populating optional event fields.
func IntPtr(v int) *int {
	return &v
}
