package log

import "time"

// pinOpcodeFloor is the lowest opcode whose first argument is a pin number.
// poll, parrot and version sit below it.
const pinOpcodeFloor = 10

// Filter selects events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	Port         string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart and TimeEnd bound the event time to [TimeStart, TimeEnd).
	TimeStart *time.Time
	TimeEnd   *time.Time

	// Command keeps command events with this name. Frames carry only an
	// opcode and are dropped by a command filter.
	Command string

	// Pin keeps pin state changes for this pin and pin-level commands whose
	// first argument is this pin.
	Pin *int
}

// Matches reports whether event passes every set criterion.
func (f *Filter) Matches(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID,
		f.Port != "" && event.Port != f.Port,
		f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category,
		f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd),
		f.Command != "" && (event.Command == nil || event.Command.Name != f.Command),
		f.Pin != nil && !touchesPin(event, *f.Pin):
		return false
	}
	return true
}

func touchesPin(event Event, pin int) bool {
	if sc := event.StateChange; sc != nil {
		return sc.Pin != nil && *sc.Pin == pin
	}
	if cmd := event.Command; cmd != nil {
		return cmd.Opcode >= pinOpcodeFloor && len(cmd.Args) > 0 && cmd.Args[0] == pin
	}
	return false
}
