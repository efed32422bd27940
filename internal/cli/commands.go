// Package cli implements the interactive command-line interface for
// realmlink: mirror tables for the session and a handful of commands that
// drive the facades.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/facade"
	"github.com/energizer-project/realmlink/internal/protocol"
)

// CaptureLister lists stored capture sessions.
type CaptureLister interface {
	Sessions() ([]db.Session, error)
}

// Deps are the CLI's optional collaborators. Nil In and Out mean stdin
// and stdout.
type Deps struct {
	Connected func() bool
	Captures  CaptureLister
	In        io.Reader
	Out       io.Writer
}

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	set      *facade.Set
	deps     Deps
	out      io.Writer
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, set *facade.Set, deps Deps) *CLI {
	if deps.In == nil {
		deps.In = os.Stdin
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Connected == nil {
		deps.Connected = func() bool { return false }
	}
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		set:      set,
		deps:     deps,
		out:      deps.Out,
	}
}

// Start runs the command loop until ctx ends, input runs out or the user
// quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nrealmlink CLI ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.deps.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "realmlink> ")
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return
			}
			line = l
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])

		quit, err := c.execute(ctx, cmd, parts[1:])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if quit {
			return
		}
	}
}

// execute runs one command. quit is true when the loop should end.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (quit bool, err error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "auctions":
		c.printAuctions()
	case "roster":
		c.printRoster()
	case "subsystems":
		WriteSubsystems(c.out, c.set)
	case "target":
		return false, c.cmdTarget(ctx, args)
	case "attack":
		return false, c.cmdAttack(ctx, args)
	case "stop":
		return false, c.cmdStop(ctx)
	case "search":
		return false, c.cmdSearch(ctx, args)
	case "who":
		return false, c.cmdWho(ctx, args)
	case "ping":
		return false, c.cmdPing(ctx)
	case "captures":
		return false, c.cmdCaptures()
	case "setconfig":
		return false, c.cmdSetConfig(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down realmlink...")
		if c.eventBus != nil {
			c.eventBus.Emit(ctx, events.Event{
				Type:   events.EventShutdown,
				Source: "cli",
			})
		}
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.out, "║                    realmlink CLI Commands                    ║")
	fmt.Fprintln(c.out, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintln(c.out, "║  status             Show the session overview                ║")
	fmt.Fprintln(c.out, "║  subsystems         Show every mirror and its version        ║")
	fmt.Fprintln(c.out, "║  auctions           Show the last auction search page        ║")
	fmt.Fprintln(c.out, "║  roster             Show the guild roster                    ║")
	fmt.Fprintln(c.out, "║  target <guid>      Select a unit                            ║")
	fmt.Fprintln(c.out, "║  attack <guid>      Select a unit and start attacking        ║")
	fmt.Fprintln(c.out, "║  stop               Stop attacking                           ║")
	fmt.Fprintln(c.out, "║  search <name>      Search the open auction house            ║")
	fmt.Fprintln(c.out, "║  who <guid>         Resolve a character name                 ║")
	fmt.Fprintln(c.out, "║  ping               Measure realm latency                    ║")
	fmt.Fprintln(c.out, "║  captures           List stored capture sessions             ║")
	fmt.Fprintln(c.out, "║  setconfig <s.k> <v> Update a configuration value            ║")
	fmt.Fprintln(c.out, "║  quit               Shutdown realmlink                       ║")
	fmt.Fprintln(c.out, "║  help               Show this help message                   ║")
	fmt.Fprintln(c.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.out)
}

func parseGUIDArg(args []string) (protocol.GUID, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("GUID required")
	}
	guid, err := protocol.ParseGUID(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid GUID: %s", args[0])
	}
	return guid, nil
}

func (c *CLI) cmdTarget(ctx context.Context, args []string) error {
	guid, err := parseGUIDArg(args)
	if err != nil {
		return err
	}
	if err := c.set.Targeting.Select(ctx, guid); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Selection sent for %s\n", guid)
	return nil
}

func (c *CLI) cmdAttack(ctx context.Context, args []string) error {
	guid, err := parseGUIDArg(args)
	if err != nil {
		return err
	}
	outcome, err := c.set.Combat.Attack(ctx, guid)
	if err != nil {
		return err
	}
	log.Info().Stringer("guid", guid).Str("outcome", string(outcome)).Msg("CLI: attack")
	fmt.Fprintf(c.out, "Attacking %s (selection %s)\n", guid, outcome)
	return nil
}

func (c *CLI) cmdStop(ctx context.Context) error {
	if err := c.set.Combat.StopAttack(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Attack stopped")
	return nil
}

func (c *CLI) cmdSearch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: search <name>")
	}
	q := protocol.AuctionQuery{
		Name:          strings.Join(args, " "),
		InventoryType: protocol.AnyValue,
		Class:         protocol.AnyValue,
		Subclass:      protocol.AnyValue,
		Quality:       protocol.AnyValue,
	}
	if err := c.set.Auction.Search(ctx, q); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Search sent, results show under 'auctions'")
	return nil
}

func (c *CLI) cmdWho(ctx context.Context, args []string) error {
	guid, err := parseGUIDArg(args)
	if err != nil {
		return err
	}
	name, ok, err := c.set.Names.Resolve(ctx, guid)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(c.out, "%s: no answer\n", guid)
		return nil
	}
	fmt.Fprintf(c.out, "%s: %s\n", guid, name)
	return nil
}

func (c *CLI) cmdPing(ctx context.Context) error {
	rtt, ok, err := c.set.Pinger.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "No pong before the timeout")
		return nil
	}
	fmt.Fprintf(c.out, "Pong in %dms\n", rtt.Milliseconds())
	return nil
}

func (c *CLI) cmdCaptures() error {
	if c.deps.Captures == nil {
		return fmt.Errorf("capture store disabled")
	}
	sessions, err := c.deps.Captures.Sessions()
	if err != nil {
		return err
	}
	WriteCaptures(c.out, sessions)
	return nil
}

func (c *CLI) cmdSetConfig(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <section.key> <value>")
	}
	section, key, ok := strings.Cut(args[0], ".")
	if !ok {
		return fmt.Errorf("key must be section.key, got %q", args[0])
	}
	raw := strings.Join(args[1:], " ")
	value := parseValue(raw)

	if err := c.cfg.UpdateField(section, key, value); err != nil {
		return err
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}
	if c.eventBus != nil {
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventConfigChanged,
			Source: "cli",
			Payload: events.ConfigChangedPayload{
				Section: section,
				Key:     key,
				Value:   value,
			},
		})
	}

	fmt.Fprintf(c.out, "Config updated: %s.%s = %s\n", section, key, raw)
	return nil
}
