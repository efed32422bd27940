package facade

import (
	"context"
	"time"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// GuildState is the confirmed guild membership view. Roster and Ranks
// are replaced whole by every complete roster result.
type GuildState struct {
	PendingInvite *protocol.GuildInvite        `json:"pending_invite,omitempty"`
	MOTD          string                       `json:"motd"`
	Info          string                       `json:"info"`
	Ranks         []protocol.GuildRank         `json:"ranks"`
	Roster        []protocol.GuildMember       `json:"roster"`
	LastResult    *protocol.GuildCommandResult `json:"last_result,omitempty"`
}

// Guild mirrors the player's guild.
type Guild struct {
	*subsystem.Facade[GuildState]

	player   protocol.GUID
	invites  *subsystem.Feed[protocol.GuildInvite]
	rosters  *subsystem.Feed[protocol.GuildRoster]
	events   *subsystem.Feed[protocol.GuildEvent]
	results  *subsystem.Feed[protocol.GuildCommandResult]
	declines *subsystem.Feed[protocol.GuildDecline]
}

// NewGuild creates the guild facade for player.
func NewGuild(r *router.Router, player protocol.GUID, opts subsystem.Options) *Guild {
	g := &Guild{
		Facade: subsystem.New("guild", r, GuildState{}, opts),
		player: player,
	}
	g.invites = subsystem.Handle(g.Facade, protocol.SmsgGuildInvite, protocol.ParseGuildInvite,
		func(s *GuildState, inv *protocol.GuildInvite) {
			pending := *inv
			s.PendingInvite = &pending
		})
	g.rosters = subsystem.HandleChanges(g.Facade, protocol.SmsgGuildRoster, g.parseRoster, applyRoster)
	g.events = subsystem.HandleChanges(g.Facade, protocol.SmsgGuildEvent, protocol.ParseGuildEvent, g.applyEvent)
	g.results = subsystem.Handle(g.Facade, protocol.SmsgGuildCommandResult, protocol.ParseGuildCommandResult,
		func(s *GuildState, res *protocol.GuildCommandResult) {
			if res.Command == protocol.GuildCommandQuit && res.Succeeded() {
				*s = g.Rest()
			}
			last := *res
			s.LastResult = &last
		})
	g.declines = subsystem.Handle(g.Facade, protocol.SmsgGuildDecline, protocol.ParseGuildDecline, nil)
	return g
}

func (g *Guild) parseRoster(payload []byte) (*protocol.GuildRoster, error) {
	return protocol.ParseGuildRoster(payload, g.Now())
}

// applyRoster replaces the guild view with a roster result. A result cut
// short, or one without members, says nothing reliable about who is in
// the guild, so the mirror keeps the previous listing. It is still
// published on the feed.
func applyRoster(s *GuildState, roster *protocol.GuildRoster) bool {
	if roster.Truncated || len(roster.Members) == 0 {
		return false
	}
	s.MOTD = roster.MOTD
	s.Info = roster.Info
	s.Ranks = roster.Ranks
	s.Roster = roster.Members
	return true
}

func (g *Guild) applyEvent(s *GuildState, ev *protocol.GuildEvent) bool {
	switch ev.Kind {
	case protocol.GuildEventDisbanded:
		*s = g.Rest()
		return true
	case protocol.GuildEventLeft, protocol.GuildEventRemoved:
		if ev.GUID == g.player && !ev.GUID.IsEmpty() {
			*s = g.Rest()
			return true
		}
	case protocol.GuildEventJoined:
		if ev.GUID == g.player && s.PendingInvite != nil {
			s.PendingInvite = nil
			return true
		}
	case protocol.GuildEventMotd:
		if len(ev.Strings) > 0 {
			s.MOTD = ev.Strings[0]
			return true
		}
	case protocol.GuildEventSignedOn, protocol.GuildEventSignedOff:
		if len(ev.Strings) == 0 {
			return false
		}
		roster, ok := withPresence(s.Roster, ev.Strings[0], ev.Kind == protocol.GuildEventSignedOn, g.Now())
		if ok {
			s.Roster = roster
		}
		return ok
	}
	return false
}

// withPresence returns a copy of roster with name's online flag set.
func withPresence(roster []protocol.GuildMember, name string, online bool, now time.Time) ([]protocol.GuildMember, bool) {
	for i := range roster {
		if roster[i].Name != name {
			continue
		}
		if roster[i].Online == online {
			return roster, false
		}
		out := make([]protocol.GuildMember, len(roster))
		copy(out, roster)
		out[i].Online = online
		out[i].LastSeen = now
		return out, true
	}
	return roster, false
}

// HasInvite reports whether an invitation is waiting for an answer.
func (g *Guild) HasInvite() bool { return g.Snapshot().PendingInvite != nil }

// Invites returns the feed of incoming invitations.
func (g *Guild) Invites() (<-chan protocol.GuildInvite, func()) { return g.invites.Subscribe() }

// Rosters returns the feed of roster results.
func (g *Guild) Rosters() (<-chan protocol.GuildRoster, func()) { return g.rosters.Subscribe() }

// Events returns the feed of guild events.
func (g *Guild) Events() (<-chan protocol.GuildEvent, func()) { return g.events.Subscribe() }

// Results returns the feed of guild command results.
func (g *Guild) Results() (<-chan protocol.GuildCommandResult, func()) {
	return g.results.Subscribe()
}

// Declines returns the feed of declined invitations we sent.
func (g *Guild) Declines() (<-chan protocol.GuildDecline, func()) { return g.declines.Subscribe() }

// Invite invites a player by name.
func (g *Guild) Invite(ctx context.Context, name string) error {
	return g.sendName(ctx, "invite", protocol.CmsgGuildInvite, name)
}

// Accept accepts the pending invitation.
func (g *Guild) Accept(ctx context.Context) error {
	if err := g.Require(g.HasInvite(), "accept", "no pending invitation"); err != nil {
		return err
	}
	return g.Send(ctx, protocol.CmsgGuildAccept, nil)
}

// Decline declines the pending invitation.
func (g *Guild) Decline(ctx context.Context) error {
	if err := g.Require(g.HasInvite(), "decline", "no pending invitation"); err != nil {
		return err
	}
	return g.Send(ctx, protocol.CmsgGuildDecline, nil)
}

// RequestRoster asks for the roster.
func (g *Guild) RequestRoster(ctx context.Context) error {
	return g.Send(ctx, protocol.CmsgGuildRoster, nil)
}

// Leave leaves the guild.
func (g *Guild) Leave(ctx context.Context) error {
	return g.Send(ctx, protocol.CmsgGuildLeave, nil)
}

// Promote raises a member's rank.
func (g *Guild) Promote(ctx context.Context, name string) error {
	return g.sendName(ctx, "promote", protocol.CmsgGuildPromote, name)
}

// Demote lowers a member's rank.
func (g *Guild) Demote(ctx context.Context, name string) error {
	return g.sendName(ctx, "demote", protocol.CmsgGuildDemote, name)
}

// Remove kicks a member.
func (g *Guild) Remove(ctx context.Context, name string) error {
	return g.sendName(ctx, "remove", protocol.CmsgGuildRemove, name)
}

// SetMOTD changes the message of the day.
func (g *Guild) SetMOTD(ctx context.Context, text string) error {
	return g.Send(ctx, protocol.CmsgGuildMotd, protocol.BuildGuildMotd(text))
}

func (g *Guild) sendName(ctx context.Context, operation string, op protocol.Opcode, name string) error {
	if err := g.Require(name != "", operation, "name is empty"); err != nil {
		return err
	}
	return g.Send(ctx, op, protocol.BuildGuildName(name))
}
