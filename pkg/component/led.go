package component

import (
	"sync"

	"github.com/rapiduino/rapiduino-go/pkg/pin"
)

// LED is an on/off LED on a digital pin.
type LED struct {
	Base
	pin int
}

// NewLED returns an LED on pin id. Call Connect to claim the pin.
func NewLED(id int) *LED {
	l := &LED{pin: id}
	l.bind(l.prepare, pin.Requirement{ID: id})
	return l
}

// Pin returns the LED's pin.
func (l *LED) Pin() int { return l.pin }

func (l *LED) prepare() error {
	if err := l.pinMode(l.pin, pin.ModeOutput); err != nil {
		return err
	}
	return l.TurnOff()
}

// IsOn reads the pin level.
func (l *LED) IsOn() (bool, error) {
	state, err := l.digitalRead(l.pin)
	return state == pin.High, err
}

// TurnOn drives the pin high.
func (l *LED) TurnOn() error { return l.digitalWrite(l.pin, pin.High) }

// TurnOff drives the pin low.
func (l *LED) TurnOff() error { return l.digitalWrite(l.pin, pin.Low) }

// Toggle inverts the LED.
func (l *LED) Toggle() error {
	on, err := l.IsOn()
	if err != nil {
		return err
	}
	if on {
		return l.TurnOff()
	}
	return l.TurnOn()
}

// MaxBrightness is the PWM duty of a fully lit DimmableLED.
const MaxBrightness = 255

// DimmableLED is an LED on a PWM pin.
type DimmableLED struct {
	Base
	pin int

	mu         sync.Mutex
	brightness int
	current    int
}

// NewDimmableLED returns a dimmable LED on pin id at full brightness.
func NewDimmableLED(id int) *DimmableLED {
	l := &DimmableLED{pin: id, brightness: MaxBrightness}
	l.bind(l.prepare, pin.Requirement{ID: id, PWM: true})
	return l
}

// Pin returns the LED's pin.
func (l *DimmableLED) Pin() int { return l.pin }

func (l *DimmableLED) prepare() error {
	if err := l.pinMode(l.pin, pin.ModeOutput); err != nil {
		return err
	}
	return l.TurnOff()
}

// IsOn reports whether the LED was last driven to a non-zero duty.
func (l *DimmableLED) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current > 0
}

// Brightness returns the duty used by TurnOn.
func (l *DimmableLED) Brightness() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

// SetBrightness sets the duty used by TurnOn, applying it at once if the LED
// is on.
func (l *DimmableLED) SetBrightness(v int) error {
	if v < 0 || v > MaxBrightness {
		return &BoundsError{Field: "brightness", Value: v, Min: 0, Max: MaxBrightness, Err: ErrOutOfRange}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.brightness = v
	if l.current > 0 {
		return l.write(v)
	}
	return nil
}

// TurnOn writes the configured brightness.
func (l *DimmableLED) TurnOn() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(l.brightness)
}

// TurnOff writes a zero duty.
func (l *DimmableLED) TurnOff() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(0)
}

// Toggle inverts the LED.
func (l *DimmableLED) Toggle() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current > 0 {
		return l.write(0)
	}
	return l.write(l.brightness)
}

// write must be called with l.mu held.
func (l *DimmableLED) write(v int) error {
	if err := l.analogWrite(l.pin, v); err != nil {
		return err
	}
	l.current = v
	return nil
}
