package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/pin"
	"github.com/rapiduino/rapiduino-go/pkg/transport/transporttest"
)

func newUno(t *testing.T) (*device.Device, *transporttest.Sketch) {
	t.Helper()
	b, err := board.Lookup("uno")
	require.NoError(t, err)
	s := transporttest.NewSketch()
	d, err := device.New(s, b.Pins())
	require.NoError(t, err)
	return d, s
}

func TestLED(t *testing.T) {
	d, s := newUno(t)
	led := NewLED(13)

	require.NoError(t, led.Connect(d))
	assert.True(t, led.Connected())

	mode, _ := s.Mode(13)
	assert.Equal(t, int(pin.ModeOutput), mode)
	assert.Equal(t, 0, s.Level(13), "setup turns the LED off")

	owner, ok := d.Owner(13)
	require.True(t, ok)
	assert.Equal(t, led.Token(), owner)

	require.NoError(t, led.TurnOn())
	on, err := led.IsOn()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, led.Toggle())
	assert.Equal(t, 0, s.Level(13))
	require.NoError(t, led.Toggle())
	assert.Equal(t, 1, s.Level(13))

	assert.ErrorIs(t, d.DigitalWrite(13, pin.Low, nil), device.ErrProtectedPin,
		"other callers cannot drive a connected component's pin")
}

func TestLEDConnectTwice(t *testing.T) {
	d, _ := newUno(t)
	led := NewLED(13)
	require.NoError(t, led.Connect(d))
	assert.ErrorIs(t, led.Connect(d), ErrAlreadyConnected)
}

func TestComponentsCannotShareAPin(t *testing.T) {
	d, _ := newUno(t)
	require.NoError(t, NewLED(12).Connect(d))

	err := NewLED(12).Connect(d)
	assert.ErrorIs(t, err, device.ErrPinAlreadyRegistered)
}

func TestDisconnectReleasesPins(t *testing.T) {
	d, _ := newUno(t)
	led := NewLED(13)
	require.NoError(t, led.Connect(d))

	led.Disconnect()
	assert.False(t, led.Connected())
	assert.Empty(t, d.Registered())
	assert.ErrorIs(t, led.TurnOn(), ErrNotConnected)
	assert.NoError(t, d.DigitalWrite(13, pin.High, nil))

	led.Disconnect()
	require.NoError(t, led.Connect(d), "a disconnected component can reconnect")
}

func TestNotConnected(t *testing.T) {
	led := NewLED(13)
	_, err := led.IsOn()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, NewDimmableLED(9).TurnOn(), ErrNotConnected)
}

func TestDimmableLEDRequiresPWM(t *testing.T) {
	d, _ := newUno(t)
	err := NewDimmableLED(13).Connect(d)
	assert.ErrorIs(t, err, device.ErrNotPwmPin)
	assert.Empty(t, d.Registered())
}

func TestDimmableLED(t *testing.T) {
	d, s := newUno(t)
	led := NewDimmableLED(9)
	require.NoError(t, led.Connect(d))

	assert.Equal(t, MaxBrightness, led.Brightness())
	assert.False(t, led.IsOn())

	require.NoError(t, led.SetBrightness(100))
	assert.Equal(t, 0, s.PWM(9), "brightness is not applied while off")

	require.NoError(t, led.TurnOn())
	assert.True(t, led.IsOn())
	assert.Equal(t, 100, s.PWM(9))

	require.NoError(t, led.SetBrightness(40))
	assert.Equal(t, 40, s.PWM(9), "brightness is re-applied while on")

	require.NoError(t, led.Toggle())
	assert.False(t, led.IsOn())
	assert.Equal(t, 0, s.PWM(9))

	require.NoError(t, led.Toggle())
	assert.Equal(t, 40, s.PWM(9))

	assert.ErrorIs(t, led.SetBrightness(256), ErrOutOfRange)
	assert.ErrorIs(t, led.SetBrightness(-1), ErrOutOfRange)
	assert.Equal(t, 40, led.Brightness())
}

func TestServoConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServoConfig
		ok   bool
	}{
		{"defaults", DefaultServoConfig(), true},
		{"narrow", ServoConfig{AngleMin: 10, AngleMax: 170, PWMMin: 30, PWMMax: 120}, true},
		{"angle below limit", ServoConfig{AngleMin: -1, AngleMax: 180, PWMMin: 0, PWMMax: 255}, false},
		{"angle above limit", ServoConfig{AngleMin: 0, AngleMax: 181, PWMMin: 0, PWMMax: 255}, false},
		{"angle min equals max", ServoConfig{AngleMin: 90, AngleMax: 90, PWMMin: 0, PWMMax: 255}, false},
		{"pwm above byte", ServoConfig{AngleMin: 0, AngleMax: 180, PWMMin: 0, PWMMax: 1023}, false},
		{"pwm min above max", ServoConfig{AngleMin: 0, AngleMax: 180, PWMMin: 200, PWMMax: 100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidBounds)
		})
	}
}

func TestServoSetters(t *testing.T) {
	s, err := NewServo(9, DefaultServoConfig())
	require.NoError(t, err)

	require.NoError(t, s.SetAngleMax(120))
	assert.ErrorIs(t, s.SetAngleMin(120), ErrInvalidBounds, "min must stay below max")
	require.NoError(t, s.SetAngleMin(20))
	assert.ErrorIs(t, s.SetPWMMax(256), ErrInvalidBounds)
	require.NoError(t, s.SetPWMMin(10))
	require.NoError(t, s.SetPWMMax(200))

	assert.Equal(t, ServoConfig{AngleMin: 20, AngleMax: 120, PWMMin: 10, PWMMax: 200}, s.Config())
}

func TestNewServoRejectsBadConfig(t *testing.T) {
	_, err := NewServo(9, ServoConfig{AngleMin: 0, AngleMax: 0, PWMMin: 0, PWMMax: 255})
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestServoDuty(t *testing.T) {
	cfg := DefaultServoConfig()
	assert.Equal(t, 0, cfg.Duty(0))
	assert.Equal(t, 128, cfg.Duty(90))
	assert.Equal(t, 255, cfg.Duty(180))

	narrow := ServoConfig{AngleMin: 0, AngleMax: 100, PWMMin: 50, PWMMax: 150}
	assert.Equal(t, 100, narrow.Duty(50))
}

func TestServo(t *testing.T) {
	d, sk := newUno(t)
	s, err := NewServo(10, DefaultServoConfig())
	require.NoError(t, err)
	require.NoError(t, s.Connect(d))

	_, set := s.Angle()
	assert.False(t, set)

	require.NoError(t, s.SetAngle(180))
	assert.Equal(t, 255, sk.PWM(10))

	require.NoError(t, s.SetAngle(45))
	assert.Equal(t, 64, sk.PWM(10))
	angle, set := s.Angle()
	assert.True(t, set)
	assert.Equal(t, 45, angle)

	assert.ErrorIs(t, s.SetAngle(181), ErrOutOfRange)
	assert.ErrorIs(t, s.SetAngle(-5), ErrOutOfRange)
	angle, _ = s.Angle()
	assert.Equal(t, 45, angle)
}
