package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rapiduino/rapiduino-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Commands          map[string]*CommandStats
	ErrorsByKind      map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	TruncatedFrames   int

	// TruncatedLog is set when the file ends partway through an event.
	TruncatedLog bool

	TimeRange struct {
		Start time.Time
		End   time.Time
	}
}

// CommandStats holds per-command exchange counts.
type CommandStats struct {
	Sent      int
	Completed int
	Total     time.Duration
	Max       time.Duration
}

// Mean returns the mean exchange duration of completed commands.
func (c *CommandStats) Mean() time.Duration {
	if c.Completed == 0 {
		return 0
	}
	return c.Total / time.Duration(c.Completed)
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Port      string
	Board     string
	Owned     int // pin OWNED transitions
	Freed     int // pin FREE transitions
}

// Collect reads every event in path into a Stats.
func Collect(path string) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Commands:          make(map[string]*CommandStats),
		ErrorsByKind:      make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
	err := log.Each(path, log.Filter{}, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if errors.Is(err, log.ErrTruncated) {
		stats.TruncatedLog = true
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
		}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if event.Port != "" && conn.Port == "" {
		conn.Port = event.Port
	}
	if event.Board != "" && conn.Board == "" {
		conn.Board = event.Board
	}

	switch {
	case event.Command != nil:
		cs, ok := s.Commands[event.Command.Name]
		if !ok {
			cs = &CommandStats{}
			s.Commands[event.Command.Name] = cs
		}
		if event.Direction == log.DirectionOut {
			cs.Sent++
		}
		// A duration marks the end of the exchange: on the response for
		// commands that read, on the request for write-only commands.
		if event.Command.Duration != nil {
			d := *event.Command.Duration
			cs.Completed++
			cs.Total += d
			if d > cs.Max {
				cs.Max = d
			}
		}
	case event.Frame != nil:
		if event.Frame.Truncated {
			s.TruncatedFrames++
		}
	case event.StateChange != nil:
		if event.StateChange.Entity == log.StateEntityPin {
			switch event.StateChange.NewState {
			case "OWNED":
				conn.Owned++
			case "FREE":
				conn.Freed++
			}
		}
	case event.Error != nil:
		s.Errors++
		kind := event.Error.Kind
		if kind == "" {
			kind = "unknown"
		}
		s.ErrorsByKind[kind]++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Rapiduino Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerDevice} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Commands) > 0 {
		fmt.Fprintln(w, "Commands:")
		names := make([]string, 0, len(stats.Commands))
		for name := range stats.Commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cs := stats.Commands[name]
			fmt.Fprintf(w, "  %-15s sent %d, completed %d", name+":", cs.Sent, cs.Completed)
			if cs.Completed > 0 && cs.Total > 0 {
				fmt.Fprintf(w, ", mean %s, max %s", formatDuration(cs.Mean()), formatDuration(cs.Max))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.Port != "" {
				fmt.Fprintf(w, "           Port: %s\n", c.stats.Port)
			}
			if c.stats.Board != "" {
				fmt.Fprintf(w, "           Board: %s\n", c.stats.Board)
			}
			if c.stats.Owned > 0 || c.stats.Freed > 0 {
				fmt.Fprintf(w, "           Pins owned: %d, freed: %d\n", c.stats.Owned, c.stats.Freed)
			}
		}
	}

	if stats.TruncatedFrames > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Truncated frames: %d\n", stats.TruncatedFrames)
	}
	if stats.TruncatedLog {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Log ends in a truncated event (writer stopped mid-event)")
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
		kinds := make([]string, 0, len(stats.ErrorsByKind))
		for k := range stats.ErrorsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-28s %d\n", k+":", stats.ErrorsByKind[k])
		}
	}
}
