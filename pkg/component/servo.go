package component

import (
	"fmt"
	"sync"

	"github.com/rapiduino/rapiduino-go/pkg/pin"
)

// Limits of the servo bounds. PWM is capped by analog_write's byte argument.
const (
	ServoAngleLimitMin = 0
	ServoAngleLimitMax = 180
	ServoPWMLimitMin   = 0
	ServoPWMLimitMax   = 255
)

// BoundsError reports a value rejected by a component bound.
type BoundsError struct {
	Field string
	Value int
	Min   int
	Max   int
	Err   error
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s %d: %v [%d, %d]", e.Field, e.Value, e.Err, e.Min, e.Max)
}

func (e *BoundsError) Unwrap() error { return e.Err }

// ServoConfig holds the angle range of a servo and the PWM duties that
// correspond to its ends.
type ServoConfig struct {
	AngleMin int `yaml:"angleMin" mapstructure:"angleMin"`
	AngleMax int `yaml:"angleMax" mapstructure:"angleMax"`
	PWMMin   int `yaml:"pwmMin" mapstructure:"pwmMin"`
	PWMMax   int `yaml:"pwmMax" mapstructure:"pwmMax"`
}

// DefaultServoConfig spans the full angle and duty limits.
func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		AngleMin: ServoAngleLimitMin,
		AngleMax: ServoAngleLimitMax,
		PWMMin:   ServoPWMLimitMin,
		PWMMax:   ServoPWMLimitMax,
	}
}

// Validate checks every bound against its limits and min < max.
func (c ServoConfig) Validate() error {
	if err := checkBounds("angle", c.AngleMin, c.AngleMax, ServoAngleLimitMin, ServoAngleLimitMax); err != nil {
		return err
	}
	return checkBounds("pwm", c.PWMMin, c.PWMMax, ServoPWMLimitMin, ServoPWMLimitMax)
}

func checkBounds(field string, lo, hi, limitLo, limitHi int) error {
	if lo < limitLo {
		return &BoundsError{Field: field + " min", Value: lo, Min: limitLo, Max: limitHi, Err: ErrInvalidBounds}
	}
	if hi > limitHi {
		return &BoundsError{Field: field + " max", Value: hi, Min: limitLo, Max: limitHi, Err: ErrInvalidBounds}
	}
	if lo >= hi {
		return &BoundsError{Field: field + " min", Value: lo, Min: limitLo, Max: hi - 1, Err: ErrInvalidBounds}
	}
	return nil
}

// Servo is a hobby servo driven by PWM duty on one pin.
type Servo struct {
	Base
	pin int

	mu    sync.Mutex
	cfg   ServoConfig
	angle int
	set   bool
}

// NewServo returns a servo on pin id with the given bounds.
func NewServo(id int, cfg ServoConfig) (*Servo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Servo{pin: id, cfg: cfg}
	s.bind(s.prepare, pin.Requirement{ID: id, PWM: true})
	return s, nil
}

// Pin returns the servo's pin.
func (s *Servo) Pin() int { return s.pin }

func (s *Servo) prepare() error {
	return s.pinMode(s.pin, pin.ModeOutput)
}

// Config returns the current bounds.
func (s *Servo) Config() ServoConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Servo) update(mutate func(*ServoConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	mutate(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// SetAngleMin sets the lower angle bound.
func (s *Servo) SetAngleMin(v int) error {
	return s.update(func(c *ServoConfig) { c.AngleMin = v })
}

// SetAngleMax sets the upper angle bound.
func (s *Servo) SetAngleMax(v int) error {
	return s.update(func(c *ServoConfig) { c.AngleMax = v })
}

// SetPWMMin sets the duty written at the lower angle bound.
func (s *Servo) SetPWMMin(v int) error {
	return s.update(func(c *ServoConfig) { c.PWMMin = v })
}

// SetPWMMax sets the duty written at the upper angle bound.
func (s *Servo) SetPWMMax(v int) error {
	return s.update(func(c *ServoConfig) { c.PWMMax = v })
}

// Angle returns the last angle written and whether one has been.
func (s *Servo) Angle() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle, s.set
}

// Duty maps an angle onto the PWM range, rounding to the nearest step.
func (c ServoConfig) Duty(angle int) int {
	span := c.AngleMax - c.AngleMin
	num := (angle-c.AngleMin)*(c.PWMMax-c.PWMMin)*2 + span
	return c.PWMMin + num/(2*span)
}

// SetAngle moves the servo to angle, which must lie within the angle bounds.
func (s *Servo) SetAngle(angle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if angle < s.cfg.AngleMin || angle > s.cfg.AngleMax {
		return &BoundsError{Field: "angle", Value: angle, Min: s.cfg.AngleMin, Max: s.cfg.AngleMax, Err: ErrOutOfRange}
	}
	if err := s.analogWrite(s.pin, s.cfg.Duty(angle)); err != nil {
		return err
	}
	s.angle, s.set = angle, true
	return nil
}
