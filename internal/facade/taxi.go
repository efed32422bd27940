package facade

import (
	"context"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// TaxiState is the confirmed flight map.
type TaxiState struct {
	Open       bool                     `json:"open"`
	NPC        protocol.GUID            `json:"npc"`
	Current    uint32                   `json:"current"`
	Known      []uint32                 `json:"known"`
	LastStatus *protocol.TaxiNodeStatus `json:"last_status,omitempty"`
	LastReply  *protocol.TaxiReply      `json:"last_reply,omitempty"`
}

// Knows reports whether node is on the map.
func (s TaxiState) Knows(node uint32) bool {
	for _, n := range s.Known {
		if n == node {
			return true
		}
	}
	return false
}

// Taxi mirrors the flight master window.
type Taxi struct {
	*subsystem.Facade[TaxiState]

	statuses *subsystem.Feed[protocol.TaxiNodeStatus]
	maps     *subsystem.Feed[protocol.TaxiMap]
	replies  *subsystem.Feed[protocol.ActivateTaxiReply]
}

// NewTaxi creates the taxi facade.
func NewTaxi(r *router.Router, opts subsystem.Options) *Taxi {
	t := &Taxi{Facade: subsystem.New("taxi", r, TaxiState{}, opts)}
	t.statuses = subsystem.Handle(t.Facade, protocol.SmsgTaxiNodeStatus, protocol.ParseTaxiNodeStatus,
		func(s *TaxiState, st *protocol.TaxiNodeStatus) {
			status := *st
			s.LastStatus = &status
		})
	t.maps = subsystem.Handle(t.Facade, protocol.SmsgShowTaxiNodes, protocol.ParseShowTaxiNodes,
		func(s *TaxiState, m *protocol.TaxiMap) {
			s.Open = true
			s.NPC = m.NPC
			s.Current = m.Current
			s.Known = m.Known
		})
	t.replies = subsystem.Handle(t.Facade, protocol.SmsgActivateTaxiReply, protocol.ParseActivateTaxiReply,
		func(s *TaxiState, r *protocol.ActivateTaxiReply) {
			reply := r.Reply
			if reply == protocol.TaxiOK {
				*s = t.Rest()
			}
			s.LastReply = &reply
		})
	return t
}

// IsOpen reports whether the flight map is open.
func (t *Taxi) IsOpen() bool { return t.Snapshot().Open }

// Statuses returns the feed of node status answers.
func (t *Taxi) Statuses() (<-chan protocol.TaxiNodeStatus, func()) { return t.statuses.Subscribe() }

// Maps returns the feed of flight maps.
func (t *Taxi) Maps() (<-chan protocol.TaxiMap, func()) { return t.maps.Subscribe() }

// Replies returns the feed of activation replies.
func (t *Taxi) Replies() (<-chan protocol.ActivateTaxiReply, func()) { return t.replies.Subscribe() }

// QueryStatus asks whether npc's node is known.
func (t *Taxi) QueryStatus(ctx context.Context, npc protocol.GUID) error {
	return t.Send(ctx, protocol.CmsgTaxiNodeStatusQuery, protocol.BuildTaxiNodeStatusQuery(npc))
}

// QueryNodes opens npc's flight map.
func (t *Taxi) QueryNodes(ctx context.Context, npc protocol.GUID) error {
	return t.Send(ctx, protocol.CmsgTaxiQueryAvailableNodes, protocol.BuildTaxiQueryAvailableNodes(npc))
}

// Activate flies from the current node to dst.
func (t *Taxi) Activate(ctx context.Context, dst uint32) error {
	s := t.Snapshot()
	if err := t.checkRoute(s, dst); err != nil {
		return err
	}
	return t.Send(ctx, protocol.CmsgActivateTaxi, protocol.BuildActivateTaxi(s.NPC, s.Current, dst))
}

// QuickFly opens npc's map, waits for it and flies to dst. Without a
// confirmed map there is no source node, so a timed out map wait ends
// in a precondition error. The reply is nil when its wait timed out.
func (t *Taxi) QuickFly(ctx context.Context, npc protocol.GUID, dst uint32) (*protocol.ActivateTaxiReply, error) {
	fl := t.Flow("quick fly")

	shown := subsystem.Expect(t.Facade, protocol.SmsgShowTaxiNodes, protocol.ParseShowTaxiNodes, func(m protocol.TaxiMap) bool {
		return m.NPC == npc
	})
	if _, err := correlate.Run(ctx, fl, shown,
		func(ctx context.Context) error { return t.QueryNodes(ctx, npc) }, nil); err != nil {
		return nil, err
	}

	s := t.Snapshot()
	if err := t.Require(s.Open && s.NPC == npc, "quick fly", "flight map did not open"); err != nil {
		return nil, err
	}
	if err := t.checkRoute(s, dst); err != nil {
		return nil, err
	}

	replied := subsystem.Expect(t.Facade, protocol.SmsgActivateTaxiReply, protocol.ParseActivateTaxiReply, nil)
	defer replied.Release()
	if err := t.Send(ctx, protocol.CmsgActivateTaxi, protocol.BuildActivateTaxi(npc, s.Current, dst)); err != nil {
		return nil, err
	}
	reply, outcome, err := correlate.Await(ctx, fl, replied)
	if err != nil || outcome != correlate.OutcomeConfirmed {
		return nil, err
	}
	return &reply, nil
}

func (t *Taxi) checkRoute(s TaxiState, dst uint32) error {
	if err := t.Require(s.Open, "activate", "flight map is not open"); err != nil {
		return err
	}
	if err := t.Require(dst != s.Current, "activate", "already at destination"); err != nil {
		return err
	}
	return t.Require(s.Knows(dst), "activate", "destination is not a known node")
}
