package pin

import "fmt"

// Pin describes the capabilities of one physical pin slot on a board.
// Pins are values; they are never mutated after the board table is built.
type Pin struct {
	// ID is the stable index of the pin in the board's pin table.
	ID int `yaml:"id"`

	// PWM reports whether the pin supports analog_write.
	PWM bool `yaml:"pwm"`

	// Analog reports whether the pin supports analog_read.
	Analog bool `yaml:"analog"`

	// Reserved marks pins wired to the transport (UART RX/TX).
	Reserved bool `yaml:"reserved"`
}

// String returns a compact description such as "pin 3 [pwm]".
func (p Pin) String() string {
	caps := ""
	if p.PWM {
		caps += " pwm"
	}
	if p.Analog {
		caps += " analog"
	}
	if p.Reserved {
		caps += " reserved"
	}
	if caps == "" {
		return fmt.Sprintf("pin %d", p.ID)
	}
	return fmt.Sprintf("pin %d [%s]", p.ID, caps[1:])
}

// Requirement is the capability a component needs from a pin it registers.
type Requirement struct {
	ID     int
	PWM    bool
	Analog bool
}

// Satisfies reports which of the capabilities requested by r the pin lacks.
// Both results are false when the pin can serve r.
func (p Pin) Satisfies(r Requirement) (missingPWM, missingAnalog bool) {
	return r.PWM && !p.PWM, r.Analog && !p.Analog
}
