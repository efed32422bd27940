package protocol

import (
	"time"
)

// AuctionAction names the command an SMSG_AUCTION_COMMAND_RESULT answers.
type AuctionAction uint32

const (
	AuctionActionSell   AuctionAction = 0
	AuctionActionCancel AuctionAction = 1
	AuctionActionBid    AuctionAction = 2
)

// AuctionError is the result code of an auction command.
type AuctionError uint32

const (
	AuctionOK                AuctionError = 0
	AuctionErrInventory      AuctionError = 1
	AuctionErrDatabase       AuctionError = 2
	AuctionErrNotEnoughMoney AuctionError = 3
	AuctionErrItemNotFound   AuctionError = 4
	AuctionErrHigherBid      AuctionError = 5
	AuctionErrBidIncrement   AuctionError = 7
	AuctionErrBidOwn         AuctionError = 10
	AuctionErrRestrictedAcct AuctionError = 13
)

var auctionErrorNames = map[AuctionError]string{
	AuctionOK:                "ok",
	AuctionErrInventory:      "inventory",
	AuctionErrDatabase:       "database",
	AuctionErrNotEnoughMoney: "not_enough_money",
	AuctionErrItemNotFound:   "item_not_found",
	AuctionErrHigherBid:      "higher_bid",
	AuctionErrBidIncrement:   "bid_increment",
	AuctionErrBidOwn:         "bid_own",
	AuctionErrRestrictedAcct: "restricted_account",
}

func (e AuctionError) String() string {
	if s, ok := auctionErrorNames[e]; ok {
		return s
	}
	return "unknown"
}

// AuctionEntrySize is the wire size of one listing entry.
const AuctionEntrySize = 148

const auctionEnchantSlots = 7

// AuctionEnchant is one enchantment slot on a listed item.
type AuctionEnchant struct {
	ID       uint32 `json:"id"`
	Duration uint32 `json:"duration"`
	Charges  uint32 `json:"charges"`
}

// AuctionEntry is one listing in a search, owner or bidder result.
type AuctionEntry struct {
	ID               uint32                              `json:"id"`
	ItemEntry        uint32                              `json:"item_entry"`
	Enchants         [auctionEnchantSlots]AuctionEnchant `json:"enchants"`
	RandomPropertyID int32                               `json:"random_property_id"`
	SuffixFactor     uint32                              `json:"suffix_factor"`
	Count            uint32                              `json:"count"`
	SpellCharges     int32                               `json:"spell_charges"`
	Flags            uint32                              `json:"flags"`
	Owner            GUID                                `json:"owner"`
	StartBid         uint32                              `json:"start_bid"`
	MinOutbid        uint32                              `json:"min_outbid"`
	Buyout           uint32                              `json:"buyout"`
	ExpiresAt        time.Time                           `json:"expires_at"`
	Bidder           GUID                                `json:"bidder"`
	Bid              uint32                              `json:"bid"`
}

// AuctionList is a decoded listing result. Total is the number of matches
// the server holds, which may exceed len(Entries) for paged searches.
type AuctionList struct {
	Entries     []AuctionEntry `json:"entries"`
	Total       uint32         `json:"total"`
	TotalKnown  bool           `json:"total_known"`
	SearchDelay uint32         `json:"search_delay_ms"`
	Truncated   bool           `json:"truncated"`
}

// ParseAuctionList decodes SMSG_AUCTION_LIST_RESULT and its owner and
// bidder siblings, which share one layout.
// Format: [count:4][count x entry:148][total:4]?[search_delay:4]?
// Entries that do not fit whole are dropped and the trailer is not read
// after a truncated entry. Time left is converted against now.
func ParseAuctionList(payload []byte, now time.Time) (*AuctionList, error) {
	r := NewReader(payload)
	count := r.ReadUint32()
	if err := r.Err("auction list"); err != nil {
		return nil, err
	}

	capHint := int(count)
	if fit := r.Remaining() / AuctionEntrySize; capHint > fit {
		capHint = fit
	}
	list := &AuctionList{Entries: make([]AuctionEntry, 0, capHint)}

	for i := uint32(0); i < count; i++ {
		if r.Remaining() < AuctionEntrySize {
			list.Truncated = true
			break
		}
		list.Entries = append(list.Entries, readAuctionEntry(r, now))
	}

	if !list.Truncated && r.Remaining() >= 4 {
		list.Total = r.ReadUint32()
		list.TotalKnown = true
		if r.Remaining() >= 4 {
			list.SearchDelay = r.ReadUint32()
		}
	}
	return list, nil
}

func readAuctionEntry(r *Reader, now time.Time) AuctionEntry {
	var e AuctionEntry
	e.ID = r.ReadUint32()
	e.ItemEntry = r.ReadUint32()
	for i := range e.Enchants {
		e.Enchants[i] = AuctionEnchant{
			ID:       r.ReadUint32(),
			Duration: r.ReadUint32(),
			Charges:  r.ReadUint32(),
		}
	}
	e.RandomPropertyID = r.ReadInt32()
	e.SuffixFactor = r.ReadUint32()
	e.Count = r.ReadUint32()
	e.SpellCharges = r.ReadInt32()
	e.Flags = r.ReadUint32()
	e.Owner = r.ReadGUID()
	e.StartBid = r.ReadUint32()
	e.MinOutbid = r.ReadUint32()
	e.Buyout = r.ReadUint32()
	e.ExpiresAt = now.Add(time.Duration(r.ReadUint32()) * time.Millisecond)
	e.Bidder = r.ReadGUID()
	e.Bid = r.ReadUint32()
	return e
}

// AuctionCommandResult answers a sell, cancel or bid.
//
// The tail depends on the result code:
//
//	OK + bid:    [outbid_increment:4]
//	higher bid:  [bidder:8][bid:4][outbid_increment:4]
//	inventory:   [inventory_error:4]
//	otherwise:   nothing
type AuctionCommandResult struct {
	AuctionID       uint32        `json:"auction_id"`
	Action          AuctionAction `json:"action"`
	Error           AuctionError  `json:"error"`
	OutbidIncrement uint32        `json:"outbid_increment,omitempty"`
	HighBidder      GUID          `json:"high_bidder,omitempty"`
	HighBid         uint32        `json:"high_bid,omitempty"`
	InventoryError  uint32        `json:"inventory_error,omitempty"`
}

// Succeeded reports whether the command was accepted.
func (c AuctionCommandResult) Succeeded() bool {
	return c.Error == AuctionOK
}

// ParseAuctionCommandResult decodes SMSG_AUCTION_COMMAND_RESULT.
// Format: [auction_id:4][action:4][error:4][tail by error code]
func ParseAuctionCommandResult(payload []byte) (*AuctionCommandResult, error) {
	r := NewReader(payload)
	res := &AuctionCommandResult{
		AuctionID: r.ReadUint32(),
		Action:    AuctionAction(r.ReadUint32()),
		Error:     AuctionError(r.ReadUint32()),
	}
	if err := r.Err("auction command result"); err != nil {
		return nil, err
	}

	switch res.Error {
	case AuctionOK:
		if res.Action == AuctionActionBid {
			res.OutbidIncrement = r.ReadUint32()
		}
	case AuctionErrHigherBid:
		res.HighBidder = r.ReadGUID()
		res.HighBid = r.ReadUint32()
		res.OutbidIncrement = r.ReadUint32()
	case AuctionErrInventory:
		res.InventoryError = r.ReadUint32()
	}
	if err := r.Err("auction command result tail"); err != nil {
		return nil, err
	}
	return res, nil
}

// AuctionHello is the server's reply to MSG_AUCTION_HELLO, opening the
// auction window.
type AuctionHello struct {
	Auctioneer GUID   `json:"auctioneer"`
	House      uint32 `json:"house"`
	Enabled    bool   `json:"enabled"`
}

// ParseAuctionHello decodes the inbound MSG_AUCTION_HELLO.
// Format: [auctioneer:8][house_id:4][enabled:1]
func ParseAuctionHello(payload []byte) (*AuctionHello, error) {
	r := NewReader(payload)
	h := &AuctionHello{
		Auctioneer: r.ReadGUID(),
		House:      r.ReadUint32(),
		Enabled:    r.ReadBool(),
	}
	if err := r.Err("auction hello"); err != nil {
		return nil, err
	}
	return h, nil
}

// AuctionBidderNotification tells a bidder they were outbid or won.
type AuctionBidderNotification struct {
	House            uint32 `json:"house"`
	AuctionID        uint32 `json:"auction_id"`
	Bidder           GUID   `json:"bidder"`
	Bid              uint32 `json:"bid"`
	OutbidIncrement  uint32 `json:"outbid_increment"`
	ItemEntry        uint32 `json:"item_entry"`
	RandomPropertyID int32  `json:"random_property_id"`
}

// ParseAuctionBidderNotification decodes SMSG_AUCTION_BIDDER_NOTIFICATION.
// Format: [house:4][auction_id:4][bidder:8][bid:4][outbid:4][item_entry:4][random_prop:4]
func ParseAuctionBidderNotification(payload []byte) (*AuctionBidderNotification, error) {
	r := NewReader(payload)
	n := &AuctionBidderNotification{
		House:            r.ReadUint32(),
		AuctionID:        r.ReadUint32(),
		Bidder:           r.ReadGUID(),
		Bid:              r.ReadUint32(),
		OutbidIncrement:  r.ReadUint32(),
		ItemEntry:        r.ReadUint32(),
		RandomPropertyID: r.ReadInt32(),
	}
	if err := r.Err("auction bidder notification"); err != nil {
		return nil, err
	}
	return n, nil
}

// AuctionOwnerNotification tells a seller that a bid landed or the item
// sold.
type AuctionOwnerNotification struct {
	AuctionID        uint32  `json:"auction_id"`
	Bid              uint32  `json:"bid"`
	Bidder           GUID    `json:"bidder"`
	ItemEntry        uint32  `json:"item_entry"`
	RandomPropertyID int32   `json:"random_property_id"`
	TimeLeft         float32 `json:"time_left"`
}

// ParseAuctionOwnerNotification decodes SMSG_AUCTION_OWNER_NOTIFICATION.
// Format: [auction_id:4][bid:4][unknown:4][bidder:8][item_entry:4][random_prop:4][time_left:f32]
// The word after the bid has no known meaning and is skipped. time_left
// is decoded as a float and nothing in the client depends on its unit.
func ParseAuctionOwnerNotification(payload []byte) (*AuctionOwnerNotification, error) {
	r := NewReader(payload)
	n := &AuctionOwnerNotification{}
	n.AuctionID = r.ReadUint32()
	n.Bid = r.ReadUint32()
	r.Skip(4)
	n.Bidder = r.ReadGUID()
	n.ItemEntry = r.ReadUint32()
	n.RandomPropertyID = r.ReadInt32()
	n.TimeLeft = r.ReadFloat32()
	if err := r.Err("auction owner notification"); err != nil {
		return nil, err
	}
	return n, nil
}

// AuctionRemovedNotification reports an auction that left the house.
type AuctionRemovedNotification struct {
	AuctionID        uint32 `json:"auction_id"`
	ItemEntry        uint32 `json:"item_entry"`
	RandomPropertyID int32  `json:"random_property_id"`
}

// ParseAuctionRemovedNotification decodes SMSG_AUCTION_REMOVED_NOTIFICATION.
// Format: [auction_id:4][item_entry:4][random_prop:4]
func ParseAuctionRemovedNotification(payload []byte) (*AuctionRemovedNotification, error) {
	r := NewReader(payload)
	n := &AuctionRemovedNotification{
		AuctionID:        r.ReadUint32(),
		ItemEntry:        r.ReadUint32(),
		RandomPropertyID: r.ReadInt32(),
	}
	if err := r.Err("auction removed notification"); err != nil {
		return nil, err
	}
	return n, nil
}

// ---- Builders ----

// BuildAuctionHello opens the auction window at an auctioneer.
// Format: [auctioneer:8]
func BuildAuctionHello(auctioneer GUID) []byte {
	return buildGUID(auctioneer)
}

// AuctionSellItem is one stack offered in a sell command.
type AuctionSellItem struct {
	Item  GUID
	Stack uint32
}

// AuctionSell describes CMSG_AUCTION_SELL_ITEM.
type AuctionSell struct {
	Auctioneer GUID
	Items      []AuctionSellItem
	Bid        uint32
	Buyout     uint32
	Duration   uint32 // minutes
}

// BuildAuctionSellItem lists items for sale.
// Format: [auctioneer:8][item_count:4][item_count x ([item:8][stack:4])][bid:4][buyout:4][duration:4]
func BuildAuctionSellItem(s AuctionSell) []byte {
	b := NewPacketBuilder()
	b.WriteGUID(s.Auctioneer)
	b.WriteUint32(uint32(len(s.Items)))
	for _, it := range s.Items {
		b.WriteGUID(it.Item)
		b.WriteUint32(it.Stack)
	}
	b.WriteUint32(s.Bid)
	b.WriteUint32(s.Buyout)
	b.WriteUint32(s.Duration)
	return b.Build()
}

// BuildAuctionRemoveItem cancels one of our auctions.
// Format: [auctioneer:8][auction_id:4]
func BuildAuctionRemoveItem(auctioneer GUID, auctionID uint32) []byte {
	return NewPacketBuilder().WriteGUID(auctioneer).WriteUint32(auctionID).Build()
}

// AuctionSort is one sort column of a search.
type AuctionSort struct {
	Column   uint8
	Reversed bool
}

// AuctionQuery describes CMSG_AUCTION_LIST_ITEMS.
type AuctionQuery struct {
	Auctioneer    GUID
	ListFrom      uint32
	Name          string
	LevelMin      uint8
	LevelMax      uint8
	InventoryType uint32
	Class         uint32
	Subclass      uint32
	Quality       uint32
	Usable        bool
	GetAll        bool
	Sort          []AuctionSort
}

// AnyValue is the wildcard used by search filters.
const AnyValue = 0xFFFFFFFF

// MaxAuctionSorts is the most sort columns a search can carry, since the
// count goes out as one byte.
const MaxAuctionSorts = 255

// BuildAuctionListItems searches the auction house. Sort columns past
// MaxAuctionSorts are dropped.
// Format: [auctioneer:8][list_from:4][name:cstr][level_min:1][level_max:1][inv_type:4][class:4][subclass:4][quality:4][usable:1][get_all:1][sort_count:1][sort_count x ([column:1][reversed:1])]
func BuildAuctionListItems(q AuctionQuery) []byte {
	b := NewPacketBuilder()
	b.WriteGUID(q.Auctioneer)
	b.WriteUint32(q.ListFrom)
	b.WriteNullString(q.Name)
	b.WriteUint8(q.LevelMin)
	b.WriteUint8(q.LevelMax)
	b.WriteUint32(q.InventoryType)
	b.WriteUint32(q.Class)
	b.WriteUint32(q.Subclass)
	b.WriteUint32(q.Quality)
	b.WriteBool(q.Usable)
	b.WriteBool(q.GetAll)
	sorts := q.Sort
	if len(sorts) > MaxAuctionSorts {
		sorts = sorts[:MaxAuctionSorts]
	}
	b.WriteUint8(uint8(len(sorts)))
	for _, s := range sorts {
		b.WriteUint8(s.Column)
		b.WriteBool(s.Reversed)
	}
	return b.Build()
}

// BuildAuctionListOwnerItems lists our own auctions.
// Format: [auctioneer:8][list_from:4]
func BuildAuctionListOwnerItems(auctioneer GUID, listFrom uint32) []byte {
	return NewPacketBuilder().WriteGUID(auctioneer).WriteUint32(listFrom).Build()
}

// BuildAuctionListBidderItems lists auctions we have bid on.
// Format: [auctioneer:8][list_from:4][outbid_count:4][outbid_count x auction_id:4]
func BuildAuctionListBidderItems(auctioneer GUID, listFrom uint32, outbid []uint32) []byte {
	b := NewPacketBuilder().WriteGUID(auctioneer).WriteUint32(listFrom)
	b.WriteUint32(uint32(len(outbid)))
	for _, id := range outbid {
		b.WriteUint32(id)
	}
	return b.Build()
}

// BuildAuctionPlaceBid bids on (or buys out) an auction.
// Format: [auctioneer:8][auction_id:4][price:4]
func BuildAuctionPlaceBid(auctioneer GUID, auctionID, price uint32) []byte {
	return NewPacketBuilder().WriteGUID(auctioneer).WriteUint32(auctionID).WriteUint32(price).Build()
}
