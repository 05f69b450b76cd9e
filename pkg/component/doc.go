// Package component provides device drivers built on the pin registry.
//
// A component declares the pins it needs, registers them under its own
// token when connected and drives them with that token, so no other caller
// can touch them without an explicit device.Override.
package component
