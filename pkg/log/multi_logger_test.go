package log

import "testing"

func TestMultiLoggerFansOutInOrder(t *testing.T) {
	var order []string
	tag := func(name string) Logger {
		return LoggerFunc(func(e Event) { order = append(order, name+":"+e.ConnectionID) })
	}

	multi := NewMultiLogger(tag("file"), nil, tag("slog"), nil)
	if multi.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", multi.Len())
	}

	multi.Log(Event{ConnectionID: "a"})
	multi.Log(Event{ConnectionID: "b"})

	want := []string{"file:a", "slog:a", "file:b", "slog:b"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestMultiLoggerWithoutLoggers(t *testing.T) {
	multi := NewMultiLogger(nil)
	if multi.Len() != 0 {
		t.Errorf("Len() = %d, want 0", multi.Len())
	}
	multi.Log(Event{Layer: LayerWire})
}
