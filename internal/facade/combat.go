package facade

import (
	"context"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// CombatState is the player's confirmed melee state.
type CombatState struct {
	Attacking      bool                `json:"attacking"`
	Victim         protocol.GUID       `json:"victim"`
	LastSwingError protocol.SwingError `json:"last_swing_error,omitempty"`
}

// Combat mirrors auto-attack and drives the select-then-swing flow.
type Combat struct {
	*subsystem.Facade[CombatState]

	targeting   *Targeting
	started     *subsystem.Feed[protocol.AttackStart]
	stopped     *subsystem.Feed[protocol.AttackStop]
	swingErrors []*subsystem.Feed[protocol.SwingError]
}

// NewCombat creates the combat facade. Attack selects through targeting.
func NewCombat(r *router.Router, targeting *Targeting, opts subsystem.Options) *Combat {
	c := &Combat{
		Facade:    subsystem.New("combat", r, CombatState{}, opts),
		targeting: targeting,
	}
	player := targeting.Player()

	c.started = subsystem.HandleChanges(c.Facade, protocol.SmsgAttackStart, protocol.ParseAttackStart,
		func(s *CombatState, a *protocol.AttackStart) bool {
			if a.Attacker != player {
				return false
			}
			s.Attacking = true
			s.Victim = a.Victim
			s.LastSwingError = ""
			return true
		})
	c.stopped = subsystem.HandleChanges(c.Facade, protocol.SmsgAttackStop, protocol.ParseAttackStop,
		func(s *CombatState, a *protocol.AttackStop) bool {
			if a.Attacker != player {
				return false
			}
			s.Attacking = false
			s.Victim = 0
			return true
		})
	for _, op := range protocol.SwingErrorOpcodes {
		feed := subsystem.Handle(c.Facade, op, protocol.SwingErrorParser(op),
			func(s *CombatState, e *protocol.SwingError) {
				s.LastSwingError = *e
			})
		c.swingErrors = append(c.swingErrors, feed)
	}
	return c
}

// IsAttacking reports whether the server confirmed an ongoing attack.
func (c *Combat) IsAttacking() bool { return c.Snapshot().Attacking }

// Started returns the feed of attack starts, any attacker.
func (c *Combat) Started() (<-chan protocol.AttackStart, func()) { return c.started.Subscribe() }

// Stopped returns the feed of attack stops, any attacker.
func (c *Combat) Stopped() (<-chan protocol.AttackStop, func()) { return c.stopped.Subscribe() }

// SwingErrors returns the feed of swing errors.
func (c *Combat) SwingErrors() (<-chan protocol.SwingError, func()) {
	return mergeFeeds(c.swingErrors...)
}

// Swing starts auto-attacking guid without selecting it first.
func (c *Combat) Swing(ctx context.Context, guid protocol.GUID) error {
	return c.Send(ctx, protocol.CmsgAttackSwing, protocol.BuildAttackSwing(guid))
}

// Attack selects guid, waits for the server to confirm the selection and
// then swings. The swing goes out when the wait times out too; the
// outcome says which happened.
func (c *Combat) Attack(ctx context.Context, guid protocol.GUID) (correlate.Outcome, error) {
	exp := c.targeting.ExpectTarget(guid)
	return correlate.Run(ctx, c.Flow("attack"), exp,
		func(ctx context.Context) error { return c.targeting.Select(ctx, guid) },
		func(ctx context.Context) error { return c.Swing(ctx, guid) },
	)
}

// StopAttack stops auto-attacking.
func (c *Combat) StopAttack(ctx context.Context) error {
	if err := c.Require(c.IsAttacking(), "stop attack", "not attacking"); err != nil {
		return err
	}
	return c.Send(ctx, protocol.CmsgAttackStop, protocol.BuildAttackStop())
}
