// Package interactive provides the command loop of rapiduino-console.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/pin"
	"github.com/rapiduino/rapiduino-go/pkg/worker"
)

// Console runs console commands against a device through its worker.
type Console struct {
	w     *worker.Worker
	board *board.Board
	out   io.Writer
	rl    *readline.Instance

	// force passes device.Override to pin I/O instead of the current token.
	force bool

	// token is the last one minted by "register"; I/O presents it.
	token device.Token
}

// New creates a console writing to out. Run needs a readline instance;
// use NewReadline for an interactive terminal.
func New(w *worker.Worker, b *board.Board, out io.Writer) *Console {
	return &Console{w: w, board: b, out: out}
}

// NewReadline creates a console bound to the terminal.
func NewReadline(w *worker.Worker, b *board.Board) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rapiduino> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := New(w, b, rl.Stdout())
	c.rl = rl
	return c, nil
}

// Stdout returns a writer that does not garble the prompt.
func (c *Console) Stdout() io.Writer {
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return c.out
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		if quit := c.Exec(ctx, line); quit {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "poll":
		c.cmdPoll(ctx)
	case "parrot", "echo":
		c.cmdParrot(ctx, args)
	case "version", "v":
		c.cmdVersion(ctx)
	case "pins":
		c.cmdPins()
	case "mode":
		c.cmdMode(ctx, args)
	case "dread", "dr":
		c.cmdDigitalRead(ctx, args)
	case "dwrite", "dw":
		c.cmdDigitalWrite(ctx, args)
	case "aread", "ar":
		c.cmdAnalogRead(ctx, args)
	case "awrite", "aw":
		c.cmdAnalogWrite(ctx, args)
	case "register", "reg":
		c.cmdRegister(ctx, args)
	case "deregister", "dereg":
		c.cmdDeregister(ctx, args)
	case "owners":
		c.cmdOwners()
	case "force":
		c.cmdForce(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Rapiduino Console Commands:
  Firmware:
    poll                  - Poll the firmware
    parrot <0-255>        - Echo a byte through the firmware
    version               - Show the firmware version

  Pins:
    pins                  - List the board's pins and their owners
    mode <pin> <mode>     - Set input, output or input_pullup
    dread <pin>           - Digital read
    dwrite <pin> <state>  - Digital write (high/low)
    aread <pin>           - Analog read
    awrite <pin> <0-255>  - PWM write

  Ownership:
    register <pin>[:pwm|:analog]...  - Claim pins under a new token
    deregister [token]    - Release a token's pins (default: current)
    owners                - Show registered tokens
    force on|off          - Bypass pin protection

  General:
    help                  - Show this help
    quit                  - Exit

  Pins accept IDs (13) or analog aliases (A0).`)
}

// access returns what pin I/O presents to the device.
func (c *Console) access() device.Access {
	if c.force {
		return device.Override{}
	}
	if c.token != "" {
		return c.token
	}
	return nil
}

func (c *Console) pinArg(args []string, usage string) (int, bool) {
	if len(args) < 1 {
		fmt.Fprintf(c.out, "Usage: %s\n", usage)
		return 0, false
	}
	id, err := c.board.Resolve(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return 0, false
	}
	return id, true
}

func (c *Console) fail(err error) {
	fmt.Fprintf(c.out, "Error [%s]: %v\n", device.Kind(err), err)
}

func (c *Console) cmdPoll(ctx context.Context) {
	v, err := c.w.Poll(ctx)
	if err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintf(c.out, "poll = %d\n", v)
}

func (c *Console) cmdParrot(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: parrot <0-255>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid value: %s\n", args[0])
		return
	}
	v, err := c.w.Parrot(ctx, n)
	if err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintf(c.out, "parrot = %d\n", v)
}

func (c *Console) cmdVersion(ctx context.Context) {
	fw, err := c.w.Version(ctx)
	if err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintf(c.out, "firmware %s (requires %s)\n", fw, c.w.Device().MinVersion())
}

func (c *Console) cmdPins() {
	owners := c.w.Device().Registered()
	fmt.Fprintf(c.out, "\n%s (%s):\n", c.board.Name, c.board.Description)
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, p := range c.w.Device().Pins() {
		line := fmt.Sprintf("  %-28s", p)
		if owner, ok := owners[p.ID]; ok {
			line += " owner=" + owner.String()
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *Console) cmdMode(ctx context.Context, args []string) {
	id, ok := c.pinArg(args, "mode <pin> <input|output|input_pullup>")
	if !ok {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: mode <pin> <input|output|input_pullup>")
		return
	}
	mode, err := pin.ParseMode(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.w.PinMode(ctx, id, mode, c.access()); err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) cmdDigitalRead(ctx context.Context, args []string) {
	id, ok := c.pinArg(args, "dread <pin>")
	if !ok {
		return
	}
	s, err := c.w.DigitalRead(ctx, id, c.access())
	if err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintf(c.out, "pin %d = %s\n", id, s)
}

func (c *Console) cmdDigitalWrite(ctx context.Context, args []string) {
	id, ok := c.pinArg(args, "dwrite <pin> <high|low>")
	if !ok {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: dwrite <pin> <high|low>")
		return
	}
	s, err := pin.ParseState(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.w.DigitalWrite(ctx, id, s, c.access()); err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) cmdAnalogRead(ctx context.Context, args []string) {
	id, ok := c.pinArg(args, "aread <pin>")
	if !ok {
		return
	}
	v, err := c.w.AnalogRead(ctx, id, c.access())
	if err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintf(c.out, "pin %d = %d\n", id, v)
}

func (c *Console) cmdAnalogWrite(ctx context.Context, args []string) {
	id, ok := c.pinArg(args, "awrite <pin> <0-255>")
	if !ok {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: awrite <pin> <0-255>")
		return
	}
	v, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid value: %s\n", args[1])
		return
	}
	if err := c.w.AnalogWrite(ctx, id, v, c.access()); err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

// cmdRegister parses claims such as "9:pwm", "A0:analog" or "13".
func (c *Console) cmdRegister(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: register <pin>[:pwm|:analog]...")
		return
	}
	reqs := make([]pin.Requirement, 0, len(args))
	for _, a := range args {
		name, capability, _ := strings.Cut(a, ":")
		id, err := c.board.Resolve(name)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		req := pin.Requirement{ID: id}
		switch strings.ToLower(capability) {
		case "":
		case "pwm":
			req.PWM = true
		case "analog":
			req.Analog = true
		default:
			fmt.Fprintf(c.out, "Unknown capability %q (use pwm or analog)\n", capability)
			return
		}
		reqs = append(reqs, req)
	}

	token := device.NewToken()
	if err := c.w.Register(ctx, token, reqs...); err != nil {
		c.fail(err)
		return
	}
	c.token = token
	fmt.Fprintf(c.out, "registered %s -> pins %v\n", token, c.w.Device().OwnedBy(token))
}

func (c *Console) cmdDeregister(ctx context.Context, args []string) {
	token := c.token
	if len(args) > 0 {
		token = device.Token(args[0])
	}
	if token == "" {
		fmt.Fprintln(c.out, "Usage: deregister <token>")
		return
	}
	ids, err := c.w.Deregister(ctx, token)
	if err != nil {
		c.fail(err)
		return
	}
	if token == c.token {
		c.token = ""
	}
	fmt.Fprintf(c.out, "released pins %v\n", ids)
}

func (c *Console) cmdOwners() {
	byToken := make(map[device.Token][]int)
	for id, t := range c.w.Device().Registered() {
		byToken[t] = append(byToken[t], id)
	}
	if len(byToken) == 0 {
		fmt.Fprintln(c.out, "No registered components")
		return
	}
	tokens := make([]string, 0, len(byToken))
	for t := range byToken {
		tokens = append(tokens, string(t))
	}
	sort.Strings(tokens)
	for _, t := range tokens {
		ids := byToken[device.Token(t)]
		sort.Ints(ids)
		marker := ""
		if device.Token(t) == c.token {
			marker = " (current)"
		}
		fmt.Fprintf(c.out, "  %s%s: %v\n", t, marker, ids)
	}
}

func (c *Console) cmdForce(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "force is %s\n", onOff(c.force))
		return
	}
	switch strings.ToLower(args[0]) {
	case "on":
		c.force = true
	case "off":
		c.force = false
	default:
		fmt.Fprintln(c.out, "Usage: force on|off")
		return
	}
	fmt.Fprintf(c.out, "force %s\n", onOff(c.force))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("poll"),
		readline.PcItem("parrot"),
		readline.PcItem("version"),
		readline.PcItem("pins"),
		readline.PcItem("mode"),
		readline.PcItem("dread"),
		readline.PcItem("dwrite"),
		readline.PcItem("aread"),
		readline.PcItem("awrite"),
		readline.PcItem("register"),
		readline.PcItem("deregister"),
		readline.PcItem("owners"),
		readline.PcItem("force", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("quit"),
	)
}
