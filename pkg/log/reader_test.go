package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	var read []Event
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return read
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerDevice, Category: CategoryState},
	}

	read := readAll(t, createTestLogFile(t, events), Filter{})

	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[2].ConnectionID != "conn-3" {
		t.Errorf("events out of order: %q ... %q", read[0].ConnectionID, read[2].ConnectionID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.rlog")

	logger, _ := NewFileLogger(path)
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, event=%+v", err, event)
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.rlog")); err == nil {
		t.Error("NewReader should fail for a missing file")
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)

	events := []Event{
		{Timestamp: base.Add(-time.Hour), ConnectionID: "conn-A", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryMessage, Port: "/dev/ttyACM0",
			Frame: &FrameEvent{Size: 3, Data: []byte{21, 13, 1}, Opcode: 21}},
		{Timestamp: base, ConnectionID: "conn-A", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage, Port: "/dev/ttyACM0",
			Command: &CommandEvent{Opcode: 21, Name: "digital_write", Args: []int{13, 1}}},
		{Timestamp: base.Add(10 * time.Minute), ConnectionID: "conn-B", Direction: DirectionIn, Layer: LayerWire, Category: CategoryControl, Port: "/dev/ttyUSB0",
			Command: &CommandEvent{Opcode: 1, Name: "parrot", Args: []int{13}, Values: []int{13}}},
		{Timestamp: base.Add(30 * time.Minute), ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerDevice, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityPin, OldState: "FREE", NewState: "OWNED", Pin: IntPtr(13), Token: "t1"}},
		{Timestamp: base.Add(2 * time.Hour), ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerDevice, Category: CategoryError,
			Error: &ErrorEventData{Layer: LayerDevice, Message: "pin 5 is protected", Kind: "protected_pin"}},
	}
	path := createTestLogFile(t, events)

	layerWire := LayerWire
	dirIn := DirectionIn
	catState := CategoryState
	pin13 := 13
	start := base.Add(-5 * time.Minute)
	end := base.Add(time.Hour)

	tests := []struct {
		name   string
		filter Filter
		want   []int // indexes into events
	}{
		{"connection", Filter{ConnectionID: "conn-B"}, []int{2}},
		{"layer", Filter{Layer: &layerWire}, []int{1, 2}},
		{"direction", Filter{Direction: &dirIn}, []int{2, 3, 4}},
		{"category", Filter{Category: &catState}, []int{3}},
		{"time range", Filter{TimeStart: &start, TimeEnd: &end}, []int{1, 2, 3}},
		{"port", Filter{Port: "/dev/ttyACM0"}, []int{0, 1}},
		{"command", Filter{Command: "digital_write"}, []int{1}},
		// parrot's argument is a value, not a pin
		{"pin", Filter{Pin: &pin13}, []int{1, 3}},
		{"combined", Filter{ConnectionID: "conn-A", Direction: &dirIn, Layer: &layerWire}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read := readAll(t, path, tt.filter)
			if len(read) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(read), len(tt.want))
			}
			for i, idx := range tt.want {
				if !read[i].Timestamp.Equal(events[idx].Timestamp) {
					t.Errorf("event %d: Timestamp = %v, want %v", i, read[i].Timestamp, events[idx].Timestamp)
				}
			}
		})
	}
}

func TestReaderTruncatedTail(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			Command: &CommandEvent{Opcode: 20, Name: "digital_read", Args: []int{7}}},
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Command: &CommandEvent{Opcode: 20, Name: "digital_read", Args: []int{7}, Values: []int{1}}},
	}
	path := createTestLogFile(t, events)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, info.Size()-3); err != nil {
		t.Fatal(err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != nil {
		t.Fatalf("first event: %v", err)
	}
	_, err = reader.Next()
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if reader.Decoded() != 1 {
		t.Errorf("Decoded() = %d, want 1", reader.Decoded())
	}
}

func TestEach(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "a", Layer: LayerWire},
		{Timestamp: time.Now(), ConnectionID: "b", Layer: LayerDevice},
		{Timestamp: time.Now(), ConnectionID: "c", Layer: LayerWire},
	}
	path := createTestLogFile(t, events)
	wire := LayerWire

	var ids []string
	err := Each(path, Filter{Layer: &wire}, func(e Event) error {
		ids = append(ids, e.ConnectionID)
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("ids = %v, want [a c]", ids)
	}

	stop := errors.New("stop")
	calls := 0
	err = Each(path, Filter{}, func(Event) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Each = %v after %d calls, want stop after 1", err, calls)
	}
}

func TestStreamReader(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, id := range []string{"x", "y"} {
		if err := enc.Encode(Event{ConnectionID: id}); err != nil {
			t.Fatal(err)
		}
	}

	reader := NewStreamReader(io.NopCloser(&buf), Filter{ConnectionID: "y"})
	defer reader.Close()

	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.ConnectionID != "y" {
		t.Errorf("ConnectionID = %q, want y", event.ConnectionID)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if reader.Decoded() != 2 {
		t.Errorf("Decoded() = %d, want 2", reader.Decoded())
	}
}
