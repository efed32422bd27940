package facade

import (
	"context"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// TargetingState is the confirmed selection of the bound player. Player
// is configuration and survives resets.
type TargetingState struct {
	Player protocol.GUID `json:"player"`
	Target protocol.GUID `json:"target"`
}

// Targeting mirrors the player's current target. The server confirms a
// selection by updating the player's UNIT_FIELD_TARGET descriptor, which
// may arrive as either half of the 64-bit value on its own.
type Targeting struct {
	*subsystem.Facade[TargetingState]

	player     protocol.GUID
	updates    *subsystem.Feed[protocol.ObjectUpdate]
	compressed *subsystem.Feed[protocol.ObjectUpdate]
}

// NewTargeting creates the targeting facade for player.
func NewTargeting(r *router.Router, player protocol.GUID, opts subsystem.Options) *Targeting {
	t := &Targeting{
		Facade: subsystem.New("targeting", r, TargetingState{Player: player}, opts),
		player: player,
	}
	t.updates = subsystem.HandleChanges(t.Facade, protocol.SmsgUpdateObject, protocol.ParseUpdateObject, t.applyUpdate)
	t.compressed = subsystem.HandleChanges(t.Facade, protocol.SmsgCompressedUpdateObject, protocol.ParseCompressedUpdateObject, t.applyUpdate)
	return t
}

// Player returns the bound player.
func (t *Targeting) Player() protocol.GUID { return t.player }

// Target returns the confirmed target, zero when nothing is selected.
func (t *Targeting) Target() protocol.GUID { return t.Snapshot().Target }

// Updates returns the feed of decoded object updates, compressed ones
// included.
func (t *Targeting) Updates() (<-chan protocol.ObjectUpdate, func()) {
	return mergeFeeds(t.updates, t.compressed)
}

// Select asks the server to change the target. The mirror changes only
// when the server confirms.
func (t *Targeting) Select(ctx context.Context, guid protocol.GUID) error {
	return t.Send(ctx, protocol.CmsgSetSelection, protocol.BuildSetSelection(guid))
}

// ExpectTarget starts observing for the server confirming guid as the
// target, in a plain or a compressed update. Start it before calling
// Select.
func (t *Targeting) ExpectTarget(guid protocol.GUID) *correlate.Expectation[protocol.ObjectUpdate] {
	exp := subsystem.Expect(t.Facade, protocol.SmsgUpdateObject, protocol.ParseUpdateObject, func(u protocol.ObjectUpdate) bool {
		if !t.touchesTarget(u) {
			return false
		}
		// The targeting handlers were subscribed first, so the mirror
		// already reflects u.
		return t.Target() == guid
	})
	return subsystem.ExpectAlso(t.Facade, exp, protocol.SmsgCompressedUpdateObject, protocol.ParseCompressedUpdateObject)
}

func (t *Targeting) touchesTarget(u protocol.ObjectUpdate) bool {
	for _, v := range u.Values {
		if v.GUID != t.player {
			continue
		}
		_, lo := v.Field(protocol.UnitFieldTarget)
		_, hi := v.Field(protocol.UnitFieldTargetHi)
		if lo || hi {
			return true
		}
	}
	return false
}

func (t *Targeting) applyUpdate(s *TargetingState, u *protocol.ObjectUpdate) bool {
	target := uint64(s.Target)
	for _, v := range u.Values {
		if v.GUID != t.player {
			continue
		}
		if lo, ok := v.Field(protocol.UnitFieldTarget); ok {
			target = target&^0xFFFFFFFF | uint64(lo)
		}
		if hi, ok := v.Field(protocol.UnitFieldTargetHi); ok {
			target = target&0xFFFFFFFF | uint64(hi)<<32
		}
	}
	if protocol.GUID(target) == s.Target {
		return false
	}
	s.Target = protocol.GUID(target)
	return true
}
