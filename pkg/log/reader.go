package log

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ErrTruncated is returned when a log ends partway through an event, as
// happens when the writer dies mid-event. Every event before the cut has
// already been returned.
var ErrTruncated = errors.New("log ends in a truncated event")

// Reader streams events from a protocol log, skipping those that do not
// match its filter.
type Reader struct {
	src     io.ReadCloser
	decoder *cbor.Decoder
	filter  Filter
	decoded int
}

// NewReader opens path and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and reads events that match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(f, filter), nil
}

// NewStreamReader reads events from src. Close closes src.
func NewStreamReader(src io.ReadCloser, filter Filter) *Reader {
	return &Reader{src: src, decoder: NewDecoder(src), filter: filter}
}

// Next returns the next matching event, io.EOF at a clean end of the log,
// or an error wrapping ErrTruncated when the last event is incomplete.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.decoder.Decode(&event)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return Event{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Event{}, fmt.Errorf("after %d events: %w", r.decoded, ErrTruncated)
		default:
			return Event{}, err
		}
		r.decoded++
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Decoded returns the number of events decoded so far, matching or not.
func (r *Reader) Decoded() int {
	return r.decoded
}

// Close closes the underlying source.
func (r *Reader) Close() error {
	return r.src.Close()
}

// Each calls fn for every event in path that matches filter. It stops at
// the first error from fn. A truncated tail is reported after fn has seen
// every complete event.
func Each(path string, filter Filter, fn func(Event) error) error {
	r, err := NewFilteredReader(path, filter)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		event, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
