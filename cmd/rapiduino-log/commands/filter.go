package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rapiduino/rapiduino-go/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	ConnID    string
	Port      string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	Command   string
	Pin       string
}

// Filter converts the options into a log.Filter.
func (opts FilterOptions) Filter() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
		Port:         opts.Port,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if opts.Layer != "" {
		l, err := parseLayer(opts.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := parseCategory(opts.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if opts.Command != "" {
		name, err := ParseCommandFlag(opts.Command)
		if err != nil {
			return filter, err
		}
		filter.Command = name
	}
	if opts.Pin != "" {
		p, err := strconv.Atoi(opts.Pin)
		if err != nil || p < 0 {
			return filter, fmt.Errorf("invalid pin: %s", opts.Pin)
		}
		filter.Pin = &p
	}
	return filter, nil
}

// RunFilter copies the events matching opts into opts.Output and returns
// how many it wrote.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.Filter()
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer out.Close()

	count := 0
	err = scan(path, filter, func(event log.Event) error {
		out.Log(event)
		count++
		return nil
	})
	return count, err
}
