package facade

import (
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// SetConfig carries what the facades need beyond shared options.
type SetConfig struct {
	Player  protocol.GUID
	NameTTL time.Duration
}

type member struct {
	name     string
	snapshot func() any
	version  func() uint64
	dispose  func() error
}

// Set is every facade built over one router. Each facade resets itself
// when the router reports connection loss.
type Set struct {
	Targeting *Targeting
	Combat    *Combat
	Trade     *Trade
	Bank      *Bank
	Inventory *Inventory
	Auction   *Auction
	Guild     *Guild
	GuildBank *GuildBank
	Taxi      *Taxi
	Names     *Names
	Pinger    *Pinger

	members []member
}

func register[S any](s *Set, f *subsystem.Facade[S]) {
	s.members = append(s.members, member{
		name:     f.Name(),
		snapshot: func() any { return f.Snapshot() },
		version:  f.Version,
		dispose:  f.Dispose,
	})
}

// NewSet builds all facades.
func NewSet(r *router.Router, cfg SetConfig, opts subsystem.Options) *Set {
	s := &Set{}
	s.Targeting = NewTargeting(r, cfg.Player, opts)
	s.Combat = NewCombat(r, s.Targeting, opts)
	s.Trade = NewTrade(r, opts)
	s.Bank = NewBank(r, opts)
	s.Inventory = NewInventory(r, opts)
	s.Auction = NewAuction(r, opts)
	s.Guild = NewGuild(r, cfg.Player, opts)
	s.GuildBank = NewGuildBank(r, opts)
	s.Taxi = NewTaxi(r, opts)
	s.Names = NewNames(r, cfg.NameTTL, opts)
	s.Pinger = NewPinger(r, opts)

	register(s, s.Targeting.Facade)
	register(s, s.Combat.Facade)
	register(s, s.Trade.Facade)
	register(s, s.Bank.Facade)
	register(s, s.Inventory.Facade)
	register(s, s.Auction.Facade)
	register(s, s.Guild.Facade)
	register(s, s.GuildBank.Facade)
	register(s, s.Taxi.Facade)
	register(s, s.Names.Facade)
	register(s, s.Pinger.Facade)
	return s
}

// SubsystemNames returns the facade names in sorted order.
func (s *Set) SubsystemNames() []string {
	names := make([]string, 0, len(s.members))
	for _, m := range s.members {
		names = append(names, m.name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns every facade's mirror keyed by name.
func (s *Set) Snapshot() map[string]any {
	out := make(map[string]any, len(s.members))
	for _, m := range s.members {
		out[m.name] = m.snapshot()
	}
	return out
}

// Subsystem returns one facade's mirror and version.
func (s *Set) Subsystem(name string) (snapshot any, version uint64, ok bool) {
	for _, m := range s.members {
		if m.name == name {
			return m.snapshot(), m.version(), true
		}
	}
	return nil, 0, false
}

// Dispose disposes every facade, in reverse construction order.
func (s *Set) Dispose() error {
	var err error
	for i := len(s.members) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.members[i].dispose())
	}
	return err
}
