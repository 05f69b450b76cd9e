package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapiduino/rapiduino-go/pkg/pin"
)

func TestProtection(t *testing.T) {
	d, _ := newTestDevice(t)
	x := NewToken()

	require.NoError(t, d.RegisterPins(x, 5))

	assert.ErrorIs(t, d.DigitalWrite(5, pin.High, nil), ErrProtectedPin)
	assert.ErrorIs(t, d.DigitalWrite(5, pin.High, NewToken()), ErrProtectedPin)
	assert.ErrorIs(t, d.DigitalWrite(5, pin.High, Token("")), ErrProtectedPin)
	assert.NoError(t, d.DigitalWrite(5, pin.High, x))
	assert.NoError(t, d.DigitalWrite(5, pin.Low, Override{}))

	assert.Equal(t, []int{5}, d.Deregister(x))
	assert.NoError(t, d.DigitalWrite(5, pin.High, nil))
}

func TestUnownedPinsAcceptAnyAccess(t *testing.T) {
	d, _ := newTestDevice(t)
	require.NoError(t, d.RegisterPins(NewToken(), 5))

	assert.NoError(t, d.DigitalWrite(6, pin.High, nil))
	assert.NoError(t, d.DigitalWrite(6, pin.High, NewToken()))
}

func TestRegistrationAtomicity(t *testing.T) {
	tests := []struct {
		name string
		reqs []pin.Requirement
		want error
	}{
		{
			name: "pwm on digital pin",
			reqs: []pin.Requirement{{ID: 9, PWM: true}, {ID: 13, PWM: true}},
			want: ErrNotPwmPin,
		},
		{
			name: "analog on pwm pin",
			reqs: []pin.Requirement{{ID: 14, Analog: true}, {ID: 9, Analog: true}},
			want: ErrNotAnalogPin,
		},
		{
			name: "reserved pin",
			reqs: []pin.Requirement{{ID: 2}, {ID: 1}},
			want: ErrReservedPin,
		},
		{
			name: "missing pin",
			reqs: []pin.Requirement{{ID: 2}, {ID: 20}},
			want: ErrPinDoesNotExist,
		},
		{
			name: "negative pin",
			reqs: []pin.Requirement{{ID: 2}, {ID: -1}},
			want: ErrPinDoesNotExist,
		},
		{
			name: "duplicate in batch",
			reqs: []pin.Requirement{{ID: 2}, {ID: 3}, {ID: 2}},
			want: ErrPinAlreadyRegistered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDevice(t)
			token := NewToken()

			err := d.Register(token, tt.reqs...)
			require.ErrorIs(t, err, tt.want)

			assert.Empty(t, d.Registered(), "failed registration must not claim any pin")
			assert.Empty(t, d.OwnedBy(token))

			require.NoError(t, d.RegisterPins(token, 4), "token stays usable after a failed batch")
		})
	}
}

func TestRegisterPinAlreadyRegistered(t *testing.T) {
	d, _ := newTestDevice(t)
	a, b := NewToken(), NewToken()
	require.NoError(t, d.RegisterPins(a, 3, 4))

	err := d.RegisterPins(b, 5, 4)
	var oe *OwnershipError
	require.ErrorAs(t, err, &oe)
	assert.ErrorIs(t, err, ErrPinAlreadyRegistered)
	assert.Equal(t, 4, oe.Pin)
	assert.Equal(t, a, oe.Owner)

	_, owned := d.Owner(5)
	assert.False(t, owned)
}

func TestRegisterPinCheckPrecedesExistence(t *testing.T) {
	d, _ := newTestDevice(t)
	require.NoError(t, d.RegisterPins(NewToken(), 3))

	err := d.RegisterPins(NewToken(), 3, 99)
	assert.ErrorIs(t, err, ErrPinAlreadyRegistered)
}

func TestRegisterComponentTwice(t *testing.T) {
	d, _ := newTestDevice(t)
	token := NewToken()
	require.NoError(t, d.RegisterPins(token, 3))

	err := d.RegisterPins(token, 4)
	var ce *ComponentError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrComponentAlreadyRegistered)
	assert.Equal(t, []int{3}, ce.Pins)

	_, owned := d.Owner(4)
	assert.False(t, owned)

	d.Deregister(token)
	assert.NoError(t, d.RegisterPins(token, 4), "re-registration after deregister is allowed")
}

func TestRegisterPinChecksPrecedeComponentCheck(t *testing.T) {
	d, _ := newTestDevice(t)
	token := NewToken()
	require.NoError(t, d.RegisterPins(token, 3))

	assert.ErrorIs(t, d.RegisterPins(token, 0), ErrReservedPin)
}

func TestRegisterEmptyToken(t *testing.T) {
	d, _ := newTestDevice(t)
	assert.ErrorIs(t, d.RegisterPins("", 3), ErrEmptyToken)
}

func TestRegisterEmptySet(t *testing.T) {
	d, _ := newTestDevice(t)
	token := NewToken()

	require.NoError(t, d.Register(token))
	assert.Empty(t, d.Registered())
	assert.NoError(t, d.RegisterPins(token, 3))
}

func TestDeregisterUnknownTokenIsNoop(t *testing.T) {
	d, _ := newTestDevice(t)
	other := NewToken()
	require.NoError(t, d.RegisterPins(other, 3))

	assert.Nil(t, d.Deregister(NewToken()))
	assert.Equal(t, map[int]Token{3: other}, d.Registered())
}

func TestDeregisterReleasesAllPins(t *testing.T) {
	d, _ := newTestDevice(t)
	token := NewToken()
	require.NoError(t, d.Register(token,
		pin.Requirement{ID: 15, Analog: true},
		pin.Requirement{ID: 10, PWM: true},
		pin.Requirement{ID: 2},
	))

	assert.Equal(t, []int{2, 10, 15}, d.OwnedBy(token))
	assert.Equal(t, []int{2, 10, 15}, d.Deregister(token))
	assert.Empty(t, d.Registered())
}

func TestRegisteredIsSnapshot(t *testing.T) {
	d, _ := newTestDevice(t)
	token := NewToken()
	require.NoError(t, d.RegisterPins(token, 3))

	snap := d.Registered()
	delete(snap, 3)

	owner, ok := d.Owner(3)
	assert.True(t, ok)
	assert.Equal(t, token, owner)
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[Token]bool)
	for i := 0; i < 100; i++ {
		tok := NewToken()
		require.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
}
