// Package device is the host-side model of one board running the companion
// firmware.
//
// A Device owns the wire codec for its port, the immutable pin table of its
// board and the pin registry that arbitrates ownership between components.
// Every pin operation validates in a fixed order before any byte is sent:
//
//  1. pin number in range
//  2. pin not reserved for the transport
//  3. mode, state or value argument
//  4. pin capability (analog input, PWM output)
//  5. ownership: a pin registered to a component only accepts the owner's
//     Token, or an explicit Override
//
// The Device mutex is held for the whole of one operation, validation and
// wire exchange together, so two callers can never interleave on a pin.
//
// Construction performs a one-time firmware version handshake; a Device is
// never returned for firmware outside [min, next major).
package device
