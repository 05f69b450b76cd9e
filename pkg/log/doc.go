// Package log captures a machine-readable trace of a rapiduino session.
//
// Protocol capture is separate from operational logging: slog tells an
// operator what the process is doing, while a capture records every frame
// sent to the firmware, every decoded command, and every change to pin
// ownership, so a session can be replayed and inspected offline with
// rapiduino-log.
//
// A Device takes a Logger through an option:
//
//	fl, err := log.NewFileLogger("/var/log/rapiduino/uno" + log.FileExtension)
//	...
//	dev, err := device.New(port, pins,
//		device.WithLogger(log.NewMultiLogger(fl, log.NewSlogAdapter(slog.Default()))))
//
// Events come from three layers. The transport layer logs raw frames
// (FrameEvent); the wire layer logs decoded commands with their arguments,
// values and round-trip time (CommandEvent); the device layer logs
// lifecycle and registry transitions (StateChangeEvent) and rejected
// operations (ErrorEventData).
//
// A capture file is a plain sequence of CBOR items. Appending to an
// existing file and reading a file whose writer died mid-event both work;
// the latter ends in ErrTruncated after the last complete event.
package log
