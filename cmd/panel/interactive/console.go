// Package interactive provides the interactive command-line console
// for the turnout panel.
package interactive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/panel"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// Console handles interactive mode for the panel binary.
type Console struct {
	panel *panel.Panel
	rl    *readline.Instance
}

// New creates a console bound to a running panel.
func New(p *panel.Panel) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "panel> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{panel: p, rl: rl}, nil
}

// Run starts the command loop. It returns when the user exits or the
// context is cancelled.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	// State changes arrive asynchronously; print them above the prompt.
	changes := c.panel.Notifier().Subscribe()
	go func() {
		for change := range changes {
			t, err := c.panel.Get(change.Index)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.rl.Stdout(), "[%d] %s -> %s\n",
				change.Index, t.Name, change.State)
		}
	}()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "list", "ls":
			c.cmdList()

		case "add":
			c.cmdAdd(args)

		case "remove", "rm":
			c.cmdRemove(args)

		case "rename":
			c.cmdRename(args)

		case "swap":
			c.cmdSwap(args)

		case "flip":
			c.cmdFlip(args)

		case "toggle", "t":
			c.cmdToggle(args)

		case "query", "q":
			c.cmdQuery(ctx, args)

		case "discover":
			c.cmdDiscover(args)

		case "stale":
			c.cmdStale()

		case "save":
			c.cmdSave()

		case "import":
			c.cmdImport(args)

		case "quit", "exit":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Turnout Panel Commands:
  Operation:
    list                      - List turnouts with their states
    toggle <index>            - Command a turnout to its opposite position
    query [index]             - Refresh state from the bus (all when no index)
    stale                     - Mark overdue turnouts stale now

  Editing:
    add <evN> <evR> [name]    - Define a turnout (dotted or plain hex events)
    remove <index>            - Delete a turnout
    rename <index> <name>     - Rename a turnout
    swap <a> <b>              - Exchange two display positions
    flip <index>              - Swap a turnout's normal/reverse events

  Discovery & Persistence:
    discover on|off           - Report unmatched bus events
    import <file>             - Merge turnouts from a JMRI layout XML
    save                      - Persist the turnout list now

  General:
    help                      - Show this help
    exit                      - Leave the console`)
}

func (c *Console) cmdList() {
	turnouts := c.panel.Snapshot()
	if len(turnouts) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No turnouts defined")
		return
	}

	w := c.rl.Stdout()
	fmt.Fprintf(w, "\n%-4s %-31s %-8s %-8s %s\n", "IDX", "NAME", "STATE", "PENDING", "EVENTS")
	for i, t := range turnouts {
		pending := ""
		if t.CommandPending {
			pending = "yes"
		}
		fmt.Fprintf(w, "%-4d %-31s %-8s %-8s N=%s R=%s\n",
			i, t.Name, displayState(t), pending,
			t.EventNormal, t.EventReverse)
	}
}

// displayState renders the state, flagging stale entries with the age
// of their last feedback.
func displayState(t turnout.Turnout) string {
	if t.State == turnout.StateStale && !t.LastUpdate.IsZero() {
		return fmt.Sprintf("STALE(%s)", time.Since(t.LastUpdate).Round(time.Second))
	}
	return t.State.String()
}

func (c *Console) cmdAdd(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: add <event-normal> <event-reverse> [name]")
		return
	}

	evN, err := eventid.ParseEventID(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid normal event: %v\n", err)
		return
	}
	evR, err := eventid.ParseEventID(args[1])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid reverse event: %v\n", err)
		return
	}
	name := strings.Join(args[2:], " ")

	index, err := c.panel.AddTurnout(evN, evR, name)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Add failed: %v\n", err)
		return
	}
	t, _ := c.panel.Get(index)
	fmt.Fprintf(c.rl.Stdout(), "Added [%d] %s\n", index, t.Name)
}

func (c *Console) cmdRemove(args []string) {
	index, ok := c.parseIndex(args, "Usage: remove <index>")
	if !ok {
		return
	}
	if err := c.panel.RemoveTurnout(index); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Remove failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Removed turnout %d\n", index)
}

func (c *Console) cmdRename(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: rename <index> <name>")
		return
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid index: %v\n", err)
		return
	}
	name := strings.Join(args[1:], " ")
	if err := c.panel.RenameTurnout(index, name); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Rename failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Renamed turnout %d to %q\n", index, name)
}

func (c *Console) cmdSwap(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: swap <index-a> <index-b>")
		return
	}
	a, errA := strconv.Atoi(args[0])
	b, errB := strconv.Atoi(args[1])
	if errA != nil || errB != nil {
		fmt.Fprintln(c.rl.Stdout(), "Indexes must be numbers")
		return
	}
	if err := c.panel.SwapTurnouts(a, b); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Swap failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Swapped %d and %d\n", a, b)
}

func (c *Console) cmdFlip(args []string) {
	index, ok := c.parseIndex(args, "Usage: flip <index>")
	if !ok {
		return
	}
	if err := c.panel.FlipPolarity(index); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Flip failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Flipped polarity of turnout %d\n", index)
}

func (c *Console) cmdToggle(args []string) {
	index, ok := c.parseIndex(args, "Usage: toggle <index>")
	if !ok {
		return
	}
	if err := c.panel.Toggle(index); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Toggle failed: %v\n", err)
		return
	}
	t, err := c.panel.Get(index)
	if err == nil {
		fmt.Fprintf(c.rl.Stdout(), "Commanded %s (awaiting feedback)\n", t.Name)
	}
}

func (c *Console) cmdQuery(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintf(c.rl.Stdout(), "Querying %d turnouts...\n", c.panel.Count())
		if err := c.panel.QueryAll(ctx); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Query failed: %v\n", err)
		}
		return
	}

	index, ok := c.parseIndex(args, "Usage: query [index]")
	if !ok {
		return
	}
	if err := c.panel.QueryTurnout(ctx, index); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Query failed: %v\n", err)
	}
}

func (c *Console) cmdDiscover(args []string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Discovery mode is %s (usage: discover on|off)\n",
			onOff(c.panel.DiscoveryMode()))
		return
	}

	switch strings.ToLower(args[0]) {
	case "on":
		c.panel.SetDiscoveryMode(true)
		fmt.Fprintln(c.rl.Stdout(), "Discovery mode on: unmatched bus events will be reported")
	case "off":
		c.panel.SetDiscoveryMode(false)
		fmt.Fprintln(c.rl.Stdout(), "Discovery mode off")
	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: discover on|off")
	}
}

func (c *Console) cmdStale() {
	marked := c.panel.SweepStale()
	fmt.Fprintf(c.rl.Stdout(), "Marked %d turnout(s) stale\n", marked)
}

func (c *Console) cmdSave() {
	if err := c.panel.Save(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Save failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Saved %d turnout(s)\n", c.panel.Count())
}

func (c *Console) cmdImport(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: import <jmri-layout.xml>")
		return
	}
	added, err := c.panel.ImportJMRI(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Import failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Imported %d new turnout(s)\n", added)
}

// parseIndex extracts a single integer argument.
func (c *Console) parseIndex(args []string, usage string) (int, bool) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), usage)
		return 0, false
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid index: %v\n", err)
		return 0, false
	}
	return index, true
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
