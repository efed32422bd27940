package facade

import (
	"context"
	"time"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// AuctionState is the confirmed auction house window. The three lists
// are each replaced whole by the matching list result.
type AuctionState struct {
	Open          bool                           `json:"open"`
	Auctioneer    protocol.GUID                  `json:"auctioneer"`
	House         uint32                         `json:"house"`
	Listings      []protocol.AuctionEntry        `json:"listings"`
	TotalListings uint32                         `json:"total_listings"`
	TotalKnown    bool                           `json:"total_known"`
	SearchDelay   time.Duration                  `json:"search_delay"`
	Owned         []protocol.AuctionEntry        `json:"owned"`
	Bids          []protocol.AuctionEntry        `json:"bids"`
	LastResult    *protocol.AuctionCommandResult `json:"last_result,omitempty"`
}

// Auction mirrors the auction house.
type Auction struct {
	*subsystem.Facade[AuctionState]

	hellos   *subsystem.Feed[protocol.AuctionHello]
	listings *subsystem.Feed[protocol.AuctionList]
	owned    *subsystem.Feed[protocol.AuctionList]
	bids     *subsystem.Feed[protocol.AuctionList]
	results  *subsystem.Feed[protocol.AuctionCommandResult]
	outbid   *subsystem.Feed[protocol.AuctionBidderNotification]
	sold     *subsystem.Feed[protocol.AuctionOwnerNotification]
	removed  *subsystem.Feed[protocol.AuctionRemovedNotification]
}

// NewAuction creates the auction facade.
func NewAuction(r *router.Router, opts subsystem.Options) *Auction {
	a := &Auction{Facade: subsystem.New("auction", r, AuctionState{}, opts)}

	a.hellos = subsystem.Handle(a.Facade, protocol.MsgAuctionHello, protocol.ParseAuctionHello,
		func(s *AuctionState, h *protocol.AuctionHello) {
			s.Open = h.Enabled
			s.Auctioneer = h.Auctioneer
			s.House = h.House
		})
	a.listings = subsystem.Handle(a.Facade, protocol.SmsgAuctionListResult, a.parseList,
		func(s *AuctionState, l *protocol.AuctionList) {
			s.Listings = l.Entries
			s.TotalListings = l.Total
			s.TotalKnown = l.TotalKnown
			s.SearchDelay = time.Duration(l.SearchDelay) * time.Millisecond
		})
	a.owned = subsystem.Handle(a.Facade, protocol.SmsgAuctionOwnerListResult, a.parseList,
		func(s *AuctionState, l *protocol.AuctionList) {
			s.Owned = l.Entries
		})
	a.bids = subsystem.Handle(a.Facade, protocol.SmsgAuctionBidderListResult, a.parseList,
		func(s *AuctionState, l *protocol.AuctionList) {
			s.Bids = l.Entries
		})
	a.results = subsystem.Handle(a.Facade, protocol.SmsgAuctionCommandResult, protocol.ParseAuctionCommandResult,
		func(s *AuctionState, res *protocol.AuctionCommandResult) {
			last := *res
			s.LastResult = &last
		})
	a.outbid = subsystem.Handle(a.Facade, protocol.SmsgAuctionBidderNotification, protocol.ParseAuctionBidderNotification, nil)
	a.sold = subsystem.Handle(a.Facade, protocol.SmsgAuctionOwnerNotification, protocol.ParseAuctionOwnerNotification, nil)
	a.removed = subsystem.HandleChanges(a.Facade, protocol.SmsgAuctionRemovedNotification, protocol.ParseAuctionRemovedNotification,
		func(s *AuctionState, n *protocol.AuctionRemovedNotification) bool {
			owned, changed := withoutAuction(s.Owned, n.AuctionID)
			if changed {
				s.Owned = owned
			}
			return changed
		})
	subsystem.HandleChanges(a.Facade, protocol.SmsgGossipComplete, protocol.ParseGossipComplete,
		func(s *AuctionState, _ *protocol.WindowClosed) bool {
			if !s.Open {
				return false
			}
			*s = a.Rest()
			return true
		})
	return a
}

func (a *Auction) parseList(payload []byte) (*protocol.AuctionList, error) {
	return protocol.ParseAuctionList(payload, a.Now())
}

func withoutAuction(list []protocol.AuctionEntry, id uint32) ([]protocol.AuctionEntry, bool) {
	for i := range list {
		if list[i].ID != id {
			continue
		}
		out := make([]protocol.AuctionEntry, 0, len(list)-1)
		out = append(out, list[:i]...)
		return append(out, list[i+1:]...), true
	}
	return list, false
}

// IsOpen reports whether the auction window is open.
func (a *Auction) IsOpen() bool { return a.Snapshot().Open }

// Listings returns the feed of search results.
func (a *Auction) Listings() (<-chan protocol.AuctionList, func()) { return a.listings.Subscribe() }

// OwnedLists returns the feed of owner list results.
func (a *Auction) OwnedLists() (<-chan protocol.AuctionList, func()) { return a.owned.Subscribe() }

// BidLists returns the feed of bidder list results.
func (a *Auction) BidLists() (<-chan protocol.AuctionList, func()) { return a.bids.Subscribe() }

// Results returns the feed of command results.
func (a *Auction) Results() (<-chan protocol.AuctionCommandResult, func()) {
	return a.results.Subscribe()
}

// Hellos returns the feed of auction window confirmations.
func (a *Auction) Hellos() (<-chan protocol.AuctionHello, func()) { return a.hellos.Subscribe() }

// BidderNotifications returns the feed of outbid and won notices.
func (a *Auction) BidderNotifications() (<-chan protocol.AuctionBidderNotification, func()) {
	return a.outbid.Subscribe()
}

// OwnerNotifications returns the feed of bid and sale notices on our
// auctions.
func (a *Auction) OwnerNotifications() (<-chan protocol.AuctionOwnerNotification, func()) {
	return a.sold.Subscribe()
}

// RemovedNotifications returns the feed of auctions leaving the house.
func (a *Auction) RemovedNotifications() (<-chan protocol.AuctionRemovedNotification, func()) {
	return a.removed.Subscribe()
}

// Hello opens the auction window at auctioneer.
func (a *Auction) Hello(ctx context.Context, auctioneer protocol.GUID) error {
	return a.Send(ctx, protocol.MsgAuctionHello, protocol.BuildAuctionHello(auctioneer))
}

// Sell lists items. The auctioneer is taken from the open window.
func (a *Auction) Sell(ctx context.Context, sell protocol.AuctionSell) error {
	s, err := a.requireOpen("sell")
	if err != nil {
		return err
	}
	if err := a.Require(len(sell.Items) > 0, "sell", "no items"); err != nil {
		return err
	}
	sell.Auctioneer = s.Auctioneer
	return a.Send(ctx, protocol.CmsgAuctionSellItem, protocol.BuildAuctionSellItem(sell))
}

// Remove cancels one of our auctions.
func (a *Auction) Remove(ctx context.Context, auctionID uint32) error {
	s, err := a.requireOpen("remove")
	if err != nil {
		return err
	}
	return a.Send(ctx, protocol.CmsgAuctionRemoveItem, protocol.BuildAuctionRemoveItem(s.Auctioneer, auctionID))
}

// Search runs a listing query. The auctioneer is taken from the open
// window.
func (a *Auction) Search(ctx context.Context, q protocol.AuctionQuery) error {
	s, err := a.requireOpen("search")
	if err != nil {
		return err
	}
	q.Auctioneer = s.Auctioneer
	return a.Send(ctx, protocol.CmsgAuctionListItems, protocol.BuildAuctionListItems(q))
}

// ListOwned requests our own auctions starting at listFrom.
func (a *Auction) ListOwned(ctx context.Context, listFrom uint32) error {
	s, err := a.requireOpen("list owned")
	if err != nil {
		return err
	}
	return a.Send(ctx, protocol.CmsgAuctionListOwnerItems, protocol.BuildAuctionListOwnerItems(s.Auctioneer, listFrom))
}

// ListBids requests the auctions we bid on. outbid names auctions the
// client already knows it lost.
func (a *Auction) ListBids(ctx context.Context, listFrom uint32, outbid []uint32) error {
	s, err := a.requireOpen("list bids")
	if err != nil {
		return err
	}
	return a.Send(ctx, protocol.CmsgAuctionListBidderItems, protocol.BuildAuctionListBidderItems(s.Auctioneer, listFrom, outbid))
}

// PlaceBid bids price on an auction; a price equal to the buyout buys it.
func (a *Auction) PlaceBid(ctx context.Context, auctionID, price uint32) error {
	s, err := a.requireOpen("place bid")
	if err != nil {
		return err
	}
	return a.Send(ctx, protocol.CmsgAuctionPlaceBid, protocol.BuildAuctionPlaceBid(s.Auctioneer, auctionID, price))
}

// QuickBuyout opens the window at auctioneer, bids price on auctionID and
// waits for the command result. Each step goes ahead when the wait before
// it times out. The result is nil when the last wait timed out.
func (a *Auction) QuickBuyout(ctx context.Context, auctioneer protocol.GUID, auctionID, price uint32) (*protocol.AuctionCommandResult, error) {
	fl := a.Flow("quick buyout")

	hello := subsystem.Expect(a.Facade, protocol.MsgAuctionHello, protocol.ParseAuctionHello, func(h protocol.AuctionHello) bool {
		return h.Auctioneer == auctioneer
	})
	if _, err := correlate.Run(ctx, fl, hello,
		func(ctx context.Context) error { return a.Hello(ctx, auctioneer) }, nil); err != nil {
		return nil, err
	}

	result := subsystem.Expect(a.Facade, protocol.SmsgAuctionCommandResult, protocol.ParseAuctionCommandResult, func(res protocol.AuctionCommandResult) bool {
		return res.AuctionID == auctionID && res.Action == protocol.AuctionActionBid
	})
	defer result.Release()

	bid := protocol.BuildAuctionPlaceBid(auctioneer, auctionID, price)
	if err := a.Send(ctx, protocol.CmsgAuctionPlaceBid, bid); err != nil {
		return nil, err
	}
	res, outcome, err := correlate.Await(ctx, fl, result)
	if err != nil || outcome != correlate.OutcomeConfirmed {
		return nil, err
	}
	return &res, nil
}

func (a *Auction) requireOpen(operation string) (AuctionState, error) {
	s := a.Snapshot()
	return s, a.Require(s.Open, operation, "auction window is not open")
}
