// Package version implements the firmware version handshake policy.
//
// The host accepts firmware in [min, next major): the major component must
// match the minimum exactly and the full version must not be lower.
package version

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver"
)

// DefaultMin is the oldest firmware release this library speaks to.
var DefaultMin = Firmware{Major: 1, Minor: 0, Patch: 0}

// ErrIncompatible indicates the firmware version is outside the accepted range.
var ErrIncompatible = errors.New("firmware version incompatible")

// Firmware is the (major, minor, patch) tuple reported by the version command.
type Firmware struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// FromValues builds a Firmware from the three decoded response values of
// the version command.
func FromValues(values []int) (Firmware, error) {
	if len(values) != 3 {
		return Firmware{}, fmt.Errorf("version response: expected 3 values, got %d", len(values))
	}
	var parts [3]uint8
	for i, v := range values {
		if v < 0 || v > 255 {
			return Firmware{}, fmt.Errorf("version response: component %d out of range: %d", i, v)
		}
		parts[i] = uint8(v)
	}
	return Firmware{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// Parse parses a "major.minor.patch" string. A leading "v" is accepted.
func Parse(s string) (Firmware, error) {
	sv, err := semver.NewVersion(s)
	if err != nil {
		return Firmware{}, fmt.Errorf("invalid firmware version %q: %w", s, err)
	}
	if sv.Prerelease() != "" || sv.Metadata() != "" {
		return Firmware{}, fmt.Errorf("invalid firmware version %q: pre-release and build metadata are not supported", s)
	}
	if sv.Major() > 255 || sv.Minor() > 255 || sv.Patch() > 255 {
		return Firmware{}, fmt.Errorf("invalid firmware version %q: components must fit in one byte", s)
	}
	return Firmware{Major: uint8(sv.Major()), Minor: uint8(sv.Minor()), Patch: uint8(sv.Patch())}, nil
}

// String returns the version as "major.minor.patch".
func (v Firmware) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Semver returns v as a semver.Version.
func (v Firmware) Semver() *semver.Version {
	sv, _ := semver.NewVersion(v.String())
	return sv
}

// Constraint returns the semver range accepted when v is the minimum.
func (v Firmware) Constraint() string {
	return fmt.Sprintf(">= %s, < %d.0.0", v, int(v.Major)+1)
}

// IncompatibleError reports a failed handshake with both versions.
type IncompatibleError struct {
	Actual Firmware
	Min    Firmware
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("firmware version %s incompatible: require %s", e.Actual, e.Min.Constraint())
}

// Is reports whether target is ErrIncompatible.
func (e *IncompatibleError) Is(target error) bool {
	return target == ErrIncompatible
}

// Check returns an *IncompatibleError unless actual lies in [min, next major of min).
func Check(actual, min Firmware) error {
	c, err := semver.NewConstraint(min.Constraint())
	if err != nil {
		return fmt.Errorf("build version constraint: %w", err)
	}
	if !c.Check(actual.Semver()) {
		return &IncompatibleError{Actual: actual, Min: min}
	}
	return nil
}
