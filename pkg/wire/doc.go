// Package wire implements the request/response command protocol spoken by
// the rapiduino firmware.
//
// Every request is a single opcode byte followed by the command's arguments,
// each encoded at the width declared by its Command descriptor. There is no
// length prefix and no checksum: both sides know the payload length of every
// opcode, and the transport is a reliable ordered byte stream.
//
//	poll            0   ()                 -> 1 x uint8
//	parrot          1   (value)            -> 1 x uint8
//	version         2   ()                 -> 3 x uint8 (major, minor, patch)
//	pin_mode       10   (pin, mode)        -> ()
//	digital_read   20   (pin)              -> 1 x uint8
//	digital_write  21   (pin, state)       -> ()
//	analog_read    30   (pin)              -> 1 x uint16
//	analog_write   31   (pin, value)       -> ()
//
// Multi-byte values are big-endian.
//
// # Byte-count invariants
//
// A Codec performs exactly one exchange per call. If the transport accepts
// fewer bytes than the encoded frame, the call fails with a SendError and no
// response is read. If fewer response bytes arrive than the command declares,
// the call fails with a ReceiveError. Neither is retried: the stream cannot
// be resynchronised, so the caller decides whether to reset the connection.
package wire
