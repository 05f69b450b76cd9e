package commands

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rapiduino/rapiduino-go/pkg/log"
)

// exporter writes events in one output format.
type exporter interface {
	begin() error
	write(log.Event) error
	end() error
}

func newExporter(format string, w io.Writer) (exporter, error) {
	switch format {
	case "jsonl":
		return &jsonlExporter{enc: json.NewEncoder(w)}, nil
	case "csv":
		return &csvExporter{cw: csv.NewWriter(w)}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// RunExport converts a log file to JSON lines or CSV, written to output or
// to stdout when output is empty.
func RunExport(path, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	exp, err := newExporter(format, w)
	if err != nil {
		return err
	}
	if err := exp.begin(); err != nil {
		return err
	}
	if err := scan(path, log.Filter{}, exp.write); err != nil {
		return err
	}
	return exp.end()
}

type jsonlExporter struct {
	enc *json.Encoder
}

func (e *jsonlExporter) begin() error { return nil }
func (e *jsonlExporter) end() error   { return nil }

func (e *jsonlExporter) write(event log.Event) error {
	return e.enc.Encode(event)
}

var csvHeader = []string{"timestamp", "connection_id", "port", "direction", "layer", "category", "type", "opcode", "pin", "detail"}

type csvExporter struct {
	cw *csv.Writer
}

func (e *csvExporter) begin() error {
	return e.cw.Write(csvHeader)
}

func (e *csvExporter) end() error {
	e.cw.Flush()
	return e.cw.Error()
}

func (e *csvExporter) write(event log.Event) error {
	kind, opcode, pin, detail := csvFields(event)
	return e.cw.Write([]string{
		event.Timestamp.UTC().Format(timeLayout),
		event.ConnectionID,
		event.Port,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		kind,
		opcode,
		pin,
		detail,
	})
}

// csvFields flattens the event payload. Command details read "args=values",
// state details "ENTITY:NEWSTATE".
func csvFields(event log.Event) (kind, opcode, pin, detail string) {
	switch {
	case event.Frame != nil:
		return "frame", strconv.Itoa(int(event.Frame.Opcode)), "", hex.EncodeToString(event.Frame.Data)
	case event.Command != nil:
		c := event.Command
		if c.Opcode >= 10 && len(c.Args) > 0 {
			pin = strconv.Itoa(c.Args[0])
		}
		detail = joinInts(c.Args)
		if len(c.Values) > 0 {
			detail += "=" + joinInts(c.Values)
		}
		return c.Name, strconv.Itoa(int(c.Opcode)), pin, detail
	case event.StateChange != nil:
		sc := event.StateChange
		if sc.Pin != nil {
			pin = strconv.Itoa(*sc.Pin)
		}
		return "state", "", pin, sc.Entity.String() + ":" + sc.NewState
	case event.Error != nil:
		return "error", "", "", event.Error.Message
	}
	return "unknown", "", "", ""
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}
