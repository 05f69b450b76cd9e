package pin

import (
	"fmt"
	"strings"
)

// Mode is the pin direction configured with the pin_mode command.
type Mode uint8

const (
	// ModeInput configures the pin as a high-impedance input.
	ModeInput Mode = 0
	// ModeOutput configures the pin as a push-pull output.
	ModeOutput Mode = 1
	// ModeInputPullup configures the pin as an input with the internal pull-up enabled.
	ModeInputPullup Mode = 2
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "INPUT"
	case ModeOutput:
		return "OUTPUT"
	case ModeInputPullup:
		return "INPUT_PULLUP"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// IsValid returns true if the mode is understood by the firmware.
func (m Mode) IsValid() bool {
	return m <= ModeInputPullup
}

// ParseMode parses a mode name (case-insensitive). Accepts "input",
// "output", "input_pullup" and "pullup".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "input", "in":
		return ModeInput, nil
	case "output", "out":
		return ModeOutput, nil
	case "input_pullup", "pullup":
		return ModeInputPullup, nil
	default:
		return 0, fmt.Errorf("invalid pin mode: %q (must be input, output or input_pullup)", s)
	}
}

// State is a logical digital level.
type State uint8

const (
	// Low is logic level 0.
	Low State = 0
	// High is logic level 1.
	High State = 1
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// IsValid returns true for Low and High.
func (s State) IsValid() bool {
	return s <= High
}

// ParseState parses "high"/"low" or "1"/"0" (case-insensitive).
func ParseState(s string) (State, error) {
	switch strings.ToLower(s) {
	case "high", "1", "on":
		return High, nil
	case "low", "0", "off":
		return Low, nil
	default:
		return 0, fmt.Errorf("invalid pin state: %q (must be high or low)", s)
	}
}
