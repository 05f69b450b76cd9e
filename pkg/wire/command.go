package wire

import (
	"fmt"
)

// Width is the encoded size of one argument or response value.
type Width uint8

const (
	// Uint8 is a single unsigned byte (struct code "B").
	Uint8 Width = 1
	// Uint16 is a big-endian unsigned 16-bit value (struct code "H").
	Uint16 Width = 2
)

// String returns the struct-style code of the width.
func (w Width) String() string {
	switch w {
	case Uint8:
		return "B"
	case Uint16:
		return "H"
	default:
		return fmt.Sprintf("Width(%d)", uint8(w))
	}
}

// IsValid returns true for the supported widths.
func (w Width) IsValid() bool {
	return w == Uint8 || w == Uint16
}

// Max returns the largest value encodable at this width.
func (w Width) Max() int {
	return 1<<(8*uint(w)) - 1
}

// Command describes the opcode and payload shape of one wire command.
// Commands are process-wide constants; see the Cmd* variables.
type Command struct {
	Name   string
	Opcode uint8

	ArgCount int
	ArgWidth Width

	RespCount int
	RespWidth Width
}

// RequestLen returns the encoded frame length: opcode plus arguments.
func (c Command) RequestLen() int {
	return 1 + c.ArgCount*int(c.ArgWidth)
}

// ResponseLen returns the number of response bytes the firmware sends.
func (c Command) ResponseLen() int {
	return c.RespCount * int(c.RespWidth)
}

// String returns the command name and opcode.
func (c Command) String() string {
	return fmt.Sprintf("%s(%d)", c.Name, c.Opcode)
}

// IsControl reports whether the command concerns the link rather than a pin.
func (c Command) IsControl() bool {
	return c.Opcode < CmdPinMode.Opcode
}

// The command catalog.
var (
	CmdPoll         = Command{Name: "poll", Opcode: 0, ArgCount: 0, ArgWidth: Uint8, RespCount: 1, RespWidth: Uint8}
	CmdParrot       = Command{Name: "parrot", Opcode: 1, ArgCount: 1, ArgWidth: Uint8, RespCount: 1, RespWidth: Uint8}
	CmdVersion      = Command{Name: "version", Opcode: 2, ArgCount: 0, ArgWidth: Uint8, RespCount: 3, RespWidth: Uint8}
	CmdPinMode      = Command{Name: "pin_mode", Opcode: 10, ArgCount: 2, ArgWidth: Uint8, RespCount: 0, RespWidth: Uint8}
	CmdDigitalRead  = Command{Name: "digital_read", Opcode: 20, ArgCount: 1, ArgWidth: Uint8, RespCount: 1, RespWidth: Uint8}
	CmdDigitalWrite = Command{Name: "digital_write", Opcode: 21, ArgCount: 2, ArgWidth: Uint8, RespCount: 0, RespWidth: Uint8}
	CmdAnalogRead   = Command{Name: "analog_read", Opcode: 30, ArgCount: 1, ArgWidth: Uint8, RespCount: 1, RespWidth: Uint16}
	CmdAnalogWrite  = Command{Name: "analog_write", Opcode: 31, ArgCount: 2, ArgWidth: Uint8, RespCount: 0, RespWidth: Uint8}
)

var catalog = []Command{
	CmdPoll,
	CmdParrot,
	CmdVersion,
	CmdPinMode,
	CmdDigitalRead,
	CmdDigitalWrite,
	CmdAnalogRead,
	CmdAnalogWrite,
}

var byOpcode = func() map[uint8]Command {
	m := make(map[uint8]Command, len(catalog))
	for _, c := range catalog {
		if _, dup := m[c.Opcode]; dup {
			panic(fmt.Sprintf("wire: duplicate opcode %d", c.Opcode))
		}
		m[c.Opcode] = c
	}
	return m
}()

// Commands returns the catalog in opcode order.
func Commands() []Command {
	return append([]Command(nil), catalog...)
}

// Lookup returns the command with the given opcode.
func Lookup(opcode uint8) (Command, bool) {
	c, ok := byOpcode[opcode]
	return c, ok
}

// LookupName returns the command with the given name.
func LookupName(name string) (Command, bool) {
	for _, c := range catalog {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}
