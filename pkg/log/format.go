package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// FileExtension is the conventional extension of protocol log files.
const FileExtension = ".rlog"

// Canonical encoding keeps identical events byte-identical across runs, so
// captures of the same session can be diffed. Decoding is lenient so older
// or hand-edited files still load.
var (
	encMode = must(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode())

	decMode = must(cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode())
)

func must[T any](v T, err error) T {
	if err != nil {
		panic("log: cbor mode: " + err.Error())
	}
	return v
}

// EncodeEvent returns the CBOR encoding of one event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes one CBOR-encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns a stream encoder in the log's encoding.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder in the log's encoding.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
