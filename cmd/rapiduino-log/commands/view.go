// Package commands implements the rapiduino-log CLI commands.
package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rapiduino/rapiduino-go/pkg/log"
	"github.com/rapiduino/rapiduino-go/pkg/wire"
)

// Warnings receives notices that do not fail a command, such as a log that
// ends in a truncated event.
var Warnings io.Writer = os.Stderr

const timeLayout = "2006-01-02T15:04:05.000000Z"

// scan calls fn for each event in path matching filter. A truncated tail
// is reported to Warnings; the complete events before it still count.
func scan(path string, filter log.Filter, fn func(log.Event) error) error {
	err := log.Each(path, filter, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, log.ErrTruncated):
		fmt.Fprintf(Warnings, "warning: %s: %v\n", path, err)
		return nil
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}
}

// ViewFilter selects the events shown by view.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Command   string
	Pin       *int
}

func (f ViewFilter) toFilter() log.Filter {
	return log.Filter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		Command:   f.Command,
		Pin:       f.Pin,
	}
}

// RunView prints the matching events of a log file.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	return scan(path, filter.toFilter(), func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}

// formatEvent prints one header line, the event's details indented below
// it, and a blank separator:
//
//	<timestamp> [conn:<id>] <DIR> <LAYER|CTRL> <label>
func formatEvent(w io.Writer, event log.Event) {
	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n",
		event.Timestamp.UTC().Format(timeLayout),
		shortenConnID(event.ConnectionID),
		event.Direction.String(), layer, eventLabel(event))

	switch {
	case event.Frame != nil:
		writeFrame(w, event.Frame)
	case event.Command != nil:
		writeCommand(w, event.Direction, event.Command)
	case event.StateChange != nil:
		writeStateChange(w, event.StateChange)
	case event.Error != nil:
		writeError(w, event.Error)
	}
	fmt.Fprintln(w)
}

func eventLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Command != nil:
		return event.Command.Name
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	}
	return "Unknown"
}

// shortenConnID keeps the first UUID group of a connection ID.
func shortenConnID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeFrame(w io.Writer, f *log.FrameEvent) {
	fmt.Fprintf(w, "  Opcode: %d  Size: %d bytes\n", f.Opcode, f.Size)
	if len(f.Data) == 0 && !f.Truncated {
		return
	}
	line := "  Data: " + hex.EncodeToString(f.Data)
	if f.Truncated {
		line += fmt.Sprintf(" (truncated, %d of %d)", len(f.Data), f.Size)
	}
	fmt.Fprintln(w, line)
}

func writeCommand(w io.Writer, dir log.Direction, c *log.CommandEvent) {
	fmt.Fprintf(w, "  Opcode: %d\n", c.Opcode)
	if len(c.Args) > 0 {
		fmt.Fprintf(w, "  Args: %v\n", c.Args)
	}
	if dir == log.DirectionIn && len(c.Values) > 0 {
		fmt.Fprintf(w, "  Values: %v\n", c.Values)
	}
	if c.Duration != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*c.Duration))
	}
}

func writeStateChange(w io.Writer, sc *log.StateChangeEvent) {
	head := "  Entity: " + sc.Entity.String()
	if sc.Pin != nil {
		head += fmt.Sprintf("  Pin: %d", *sc.Pin)
	}
	fmt.Fprintln(w, head)

	// The first transition of an entity has no previous state.
	if sc.OldState == "" {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	} else {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	}
	for _, kv := range [][2]string{{"Token", sc.Token}, {"Reason", sc.Reason}} {
		if kv[1] != "" {
			fmt.Fprintf(w, "  %s: %s\n", kv[0], kv[1])
		}
	}
}

func writeError(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n  Message: %s\n", e.Layer.String(), e.Message)
	for _, kv := range [][2]string{{"Kind", e.Kind}, {"Context", e.Context}} {
		if kv[1] != "" {
			fmt.Fprintf(w, "  %s: %s\n", kv[0], kv[1])
		}
	}
}

// formatDuration prints d with three decimals in the largest unit below it.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}

// ParseLayerFlag parses a -layer value.
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseLayer(s)
}

// ParseDirectionFlag parses a -direction value.
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseDirection(s)
}

// ParseCategoryFlag parses a -category value.
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

// ParseCommandFlag checks a -command value against the wire command names.
func ParseCommandFlag(s string) (string, error) {
	cmd, ok := wire.LookupName(strings.ToLower(s))
	if !ok {
		names := make([]string, 0, len(wire.Commands()))
		for _, c := range wire.Commands() {
			names = append(names, c.Name)
		}
		return "", fmt.Errorf("invalid command: %s (must be one of %s)", s, strings.Join(names, ", "))
	}
	return cmd.Name, nil
}

var (
	layerNames = map[string]log.Layer{
		"transport": log.LayerTransport,
		"wire":      log.LayerWire,
		"device":    log.LayerDevice,
	}
	directionNames = map[string]log.Direction{
		"in":  log.DirectionIn,
		"out": log.DirectionOut,
	}
	categoryNames = map[string]log.Category{
		"message": log.CategoryMessage,
		"control": log.CategoryControl,
		"state":   log.CategoryState,
		"error":   log.CategoryError,
	}
)

func parseLayer(s string) (log.Layer, error) {
	if l, ok := layerNames[strings.ToLower(s)]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or device)", s)
}

func parseDirection(s string) (log.Direction, error) {
	if d, ok := directionNames[strings.ToLower(s)]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
}

func parseCategory(s string) (log.Category, error) {
	if c, ok := categoryNames[strings.ToLower(s)]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
}
