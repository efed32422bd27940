package facade

import (
	"context"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// TradeSide is what one party currently offers.
type TradeSide struct {
	Gold  uint32               `json:"gold"`
	Spell uint32               `json:"spell,omitempty"`
	Items []protocol.TradeItem `json:"items"`
}

// TradeState is the confirmed trade window. Offers and Accepted are
// indexed by protocol.TradeParty.
type TradeState struct {
	Proposed   bool                     `json:"proposed"`
	Open       bool                     `json:"open"`
	Trader     protocol.GUID            `json:"trader"`
	TradeID    uint32                   `json:"trade_id"`
	Offers     [2]TradeSide             `json:"offers"`
	Accepted   [2]bool                  `json:"accepted"`
	LastStatus protocol.TradeStatusCode `json:"last_status"`
}

// Trade mirrors the player-to-player trade window.
type Trade struct {
	*subsystem.Facade[TradeState]

	statuses *subsystem.Feed[protocol.TradeStatus]
	offers   *subsystem.Feed[protocol.TradeOffer]
}

// NewTrade creates the trade facade.
func NewTrade(r *router.Router, opts subsystem.Options) *Trade {
	t := &Trade{Facade: subsystem.New("trade", r, TradeState{}, opts)}
	t.statuses = subsystem.Handle(t.Facade, protocol.SmsgTradeStatus, protocol.ParseTradeStatus, t.applyStatus)
	t.offers = subsystem.Handle(t.Facade, protocol.SmsgTradeStatusExtended, protocol.ParseTradeStatusExtended,
		func(s *TradeState, o *protocol.TradeOffer) {
			s.TradeID = o.TradeID
			s.Offers[o.Party] = TradeSide{Gold: o.Gold, Spell: o.Spell, Items: o.Items}
		})
	return t
}

func (t *Trade) applyStatus(s *TradeState, st *protocol.TradeStatus) {
	switch st.Status {
	case protocol.TradeStatusCanceled, protocol.TradeStatusComplete, protocol.TradeStatusCloseWindow:
		*s = t.Rest()
		return
	case protocol.TradeStatusBeginTrade:
		s.Proposed = true
		s.Trader = st.Trader
	case protocol.TradeStatusOpenWindow:
		s.Proposed = false
		s.Open = true
		s.TradeID = st.TradeID
	case protocol.TradeStatusAccept:
		s.Accepted[st.Party] = true
	case protocol.TradeStatusBackToTrade:
		s.Accepted = [2]bool{}
	}
	s.LastStatus = st.Status
}

// IsOpen reports whether the trade window is open.
func (t *Trade) IsOpen() bool { return t.Snapshot().Open }

// Statuses returns the feed of trade status changes.
func (t *Trade) Statuses() (<-chan protocol.TradeStatus, func()) { return t.statuses.Subscribe() }

// Offers returns the feed of offer updates for either side.
func (t *Trade) Offers() (<-chan protocol.TradeOffer, func()) { return t.offers.Subscribe() }

// Initiate proposes a trade to target.
func (t *Trade) Initiate(ctx context.Context, target protocol.GUID) error {
	return t.Send(ctx, protocol.CmsgInitiateTrade, protocol.BuildInitiateTrade(target))
}

// Begin accepts a proposed trade.
func (t *Trade) Begin(ctx context.Context) error {
	if err := t.Require(t.Snapshot().Proposed, "begin", "no trade proposed"); err != nil {
		return err
	}
	return t.Send(ctx, protocol.CmsgBeginTrade, nil)
}

// Busy declines a proposal because the player is busy.
func (t *Trade) Busy(ctx context.Context) error {
	return t.Send(ctx, protocol.CmsgBusyTrade, nil)
}

// Ignore declines a proposal silently.
func (t *Trade) Ignore(ctx context.Context) error {
	return t.Send(ctx, protocol.CmsgIgnoreTrade, nil)
}

// Accept locks in our side.
func (t *Trade) Accept(ctx context.Context) error {
	if err := t.requireOpen("accept"); err != nil {
		return err
	}
	return t.Send(ctx, protocol.CmsgAcceptTrade, protocol.BuildAcceptTrade())
}

// Unaccept withdraws our acceptance.
func (t *Trade) Unaccept(ctx context.Context) error {
	if err := t.requireOpen("unaccept"); err != nil {
		return err
	}
	return t.Send(ctx, protocol.CmsgUnacceptTrade, nil)
}

// Cancel cancels the trade, open or proposed.
func (t *Trade) Cancel(ctx context.Context) error {
	return t.Send(ctx, protocol.CmsgCancelTrade, nil)
}

// SetItem puts the item at bag/slot into tradeSlot.
func (t *Trade) SetItem(ctx context.Context, tradeSlot, bag, slot uint8) error {
	if err := t.requireOpen("set item"); err != nil {
		return err
	}
	if err := t.Require(tradeSlot < protocol.TradeSlots, "set item", "trade slot out of range"); err != nil {
		return err
	}
	return t.Send(ctx, protocol.CmsgSetTradeItem, protocol.BuildSetTradeItem(tradeSlot, bag, slot))
}

// ClearItem empties tradeSlot.
func (t *Trade) ClearItem(ctx context.Context, tradeSlot uint8) error {
	if err := t.requireOpen("clear item"); err != nil {
		return err
	}
	if err := t.Require(tradeSlot < protocol.TradeSlots, "clear item", "trade slot out of range"); err != nil {
		return err
	}
	return t.Send(ctx, protocol.CmsgClearTradeItem, protocol.BuildClearTradeItem(tradeSlot))
}

// SetGold sets the copper we offer.
func (t *Trade) SetGold(ctx context.Context, gold uint32) error {
	if err := t.requireOpen("set gold"); err != nil {
		return err
	}
	return t.Send(ctx, protocol.CmsgSetTradeGold, protocol.BuildSetTradeGold(gold))
}

// QuickOffer proposes a trade to target, waits for the window to open and
// offers gold. The gold goes out after a timed out wait as well.
func (t *Trade) QuickOffer(ctx context.Context, target protocol.GUID, gold uint32) (correlate.Outcome, error) {
	exp := subsystem.Expect(t.Facade, protocol.SmsgTradeStatus, protocol.ParseTradeStatus, func(st protocol.TradeStatus) bool {
		return st.Status == protocol.TradeStatusOpenWindow
	})
	return correlate.Run(ctx, t.Flow("quick offer"), exp,
		func(ctx context.Context) error { return t.Initiate(ctx, target) },
		func(ctx context.Context) error {
			return t.Send(ctx, protocol.CmsgSetTradeGold, protocol.BuildSetTradeGold(gold))
		},
	)
}

func (t *Trade) requireOpen(operation string) error {
	return t.Require(t.IsOpen(), operation, "trade window is not open")
}
