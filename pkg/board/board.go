// Package board provides the static pin tables of the supported boards.
//
// Tables are plain data embedded from YAML manifests and selected by name:
//
//	b, err := board.Lookup("uno")
//	dev, err := device.New(port, b.Pins())
package board

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rapiduino/rapiduino-go/pkg/pin"
	"gopkg.in/yaml.v3"
)

//go:embed boards/*.yaml
var boardFS embed.FS

// ErrUnknownBoard is returned by Lookup for names without a manifest.
var ErrUnknownBoard = errors.New("unknown board")

// ErrUnknownPin is returned by Resolve for names that do not map to a pin.
var ErrUnknownPin = errors.New("unknown pin")

// manifest is the on-disk form of a board table.
type manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
	Pins        int      `yaml:"pins"`
	Reserved    []int    `yaml:"reserved"`
	PWM         []int    `yaml:"pwm"`
	Analog      []int    `yaml:"analog"`
}

// Board is an immutable pin table.
type Board struct {
	Name        string
	Description string

	pins   []pin.Pin
	analog []int
}

// Pins returns a copy of the board's pin table, indexed by pin ID.
func (b *Board) Pins() []pin.Pin {
	out := make([]pin.Pin, len(b.pins))
	copy(out, b.pins)
	return out
}

// Len returns the number of pins on the board.
func (b *Board) Len() int {
	return len(b.pins)
}

// AnalogPins returns the pin IDs behind the A0..An aliases, in order.
func (b *Board) AnalogPins() []int {
	out := make([]int, len(b.analog))
	copy(out, b.analog)
	return out
}

// Resolve maps a pin name to its ID. It accepts decimal IDs ("13") and
// analog aliases ("A0", case-insensitive).
func (b *Board) Resolve(name string) (int, error) {
	s := strings.TrimSpace(name)
	if len(s) > 1 && (s[0] == 'A' || s[0] == 'a') {
		idx, err := strconv.Atoi(s[1:])
		if err != nil || idx < 0 || idx >= len(b.analog) {
			return 0, fmt.Errorf("%w: %q on %s", ErrUnknownPin, name, b.Name)
		}
		return b.analog[idx], nil
	}

	id, err := strconv.Atoi(s)
	if err != nil || id < 0 || id >= len(b.pins) {
		return 0, fmt.Errorf("%w: %q on %s", ErrUnknownPin, name, b.Name)
	}
	return id, nil
}

func (m *manifest) build() (*Board, error) {
	if m.Pins <= 0 {
		return nil, fmt.Errorf("board %s: pin count must be positive", m.Name)
	}

	pins := make([]pin.Pin, m.Pins)
	for i := range pins {
		pins[i].ID = i
	}

	mark := func(ids []int, what string, set func(*pin.Pin)) error {
		for _, id := range ids {
			if id < 0 || id >= m.Pins {
				return fmt.Errorf("board %s: %s pin %d out of range", m.Name, what, id)
			}
			set(&pins[id])
		}
		return nil
	}
	if err := mark(m.Reserved, "reserved", func(p *pin.Pin) { p.Reserved = true }); err != nil {
		return nil, err
	}
	if err := mark(m.PWM, "pwm", func(p *pin.Pin) { p.PWM = true }); err != nil {
		return nil, err
	}
	if err := mark(m.Analog, "analog", func(p *pin.Pin) { p.Analog = true }); err != nil {
		return nil, err
	}

	return &Board{
		Name:        m.Name,
		Description: m.Description,
		pins:        pins,
		analog:      append([]int(nil), m.Analog...),
	}, nil
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

var (
	loadOnce sync.Once
	loadErr  error
	byName   map[string]*Board
	names    []string
)

func load() {
	entries, err := boardFS.ReadDir("boards")
	if err != nil {
		loadErr = fmt.Errorf("reading boards directory: %w", err)
		return
	}

	byName = make(map[string]*Board)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := boardFS.ReadFile("boards/" + e.Name())
		if err != nil {
			loadErr = fmt.Errorf("reading board %s: %w", e.Name(), err)
			return
		}

		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			loadErr = fmt.Errorf("parsing board %s: %w", e.Name(), err)
			return
		}
		b, err := m.build()
		if err != nil {
			loadErr = err
			return
		}

		byName[m.Name] = b
		names = append(names, m.Name)
		for _, alias := range m.Aliases {
			byName[alias] = b
		}
	}
	sort.Strings(names)
}

// Lookup returns the board table registered under name or one of its aliases.
func Lookup(name string) (*Board, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}

	b, ok := byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBoard, name)
	}
	return b, nil
}

// Names returns the canonical names of all embedded boards, sorted.
func Names() []string {
	loadOnce.Do(load)
	return append([]string(nil), names...)
}
