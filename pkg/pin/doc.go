// Package pin describes the physical pins of a board and the logical values
// exchanged with the firmware for them.
//
// A Pin is an immutable capability descriptor: whether it can drive PWM,
// whether it can be sampled by the ADC, and whether it is wired to the serial
// transport itself. Mode and State are the enumerations sent over the wire by
// the pin_mode and digital_read/digital_write commands.
package pin
