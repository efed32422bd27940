package protocol

import "fmt"

// TradeStatusCode is the status word of SMSG_TRADE_STATUS.
type TradeStatusCode uint32

const (
	TradeStatusBusy          TradeStatusCode = 0
	TradeStatusBeginTrade    TradeStatusCode = 1
	TradeStatusOpenWindow    TradeStatusCode = 2
	TradeStatusCanceled      TradeStatusCode = 3
	TradeStatusAccept        TradeStatusCode = 4
	TradeStatusBusy2         TradeStatusCode = 5
	TradeStatusNoTarget      TradeStatusCode = 6
	TradeStatusBackToTrade   TradeStatusCode = 7
	TradeStatusComplete      TradeStatusCode = 8
	TradeStatusRejected      TradeStatusCode = 9
	TradeStatusTargetTooFar  TradeStatusCode = 10
	TradeStatusWrongFaction  TradeStatusCode = 11
	TradeStatusCloseWindow   TradeStatusCode = 12
	TradeStatusIgnoreYou     TradeStatusCode = 14
	TradeStatusYouStunned    TradeStatusCode = 15
	TradeStatusTargetStunned TradeStatusCode = 16
	TradeStatusYouDead       TradeStatusCode = 17
	TradeStatusTargetDead    TradeStatusCode = 18
	TradeStatusYouLogout     TradeStatusCode = 19
	TradeStatusTargetLogout  TradeStatusCode = 20
	TradeStatusTrialAccount  TradeStatusCode = 21
	TradeStatusOnlyConjured  TradeStatusCode = 22
	TradeStatusNotOnTaplist  TradeStatusCode = 23
)

// TradeParty selects one side of a trade.
type TradeParty uint8

const (
	TradeSelf        TradeParty = 0
	TradeCounterpart TradeParty = 1
)

func (p TradeParty) String() string {
	switch p {
	case TradeSelf:
		return "self"
	case TradeCounterpart:
		return "counterpart"
	}
	return fmt.Sprintf("party(%d)", uint8(p))
}

// TradeStatus is a decoded SMSG_TRADE_STATUS. Only the fields belonging
// to Status's tail are populated.
type TradeStatus struct {
	Status            TradeStatusCode `json:"status"`
	Trader            GUID            `json:"trader,omitempty"`
	TradeID           uint32          `json:"trade_id,omitempty"`
	Result            uint32          `json:"result,omitempty"`
	TargetError       bool            `json:"target_error,omitempty"`
	ItemLimitCategory uint32          `json:"item_limit_category,omitempty"`
	Slot              uint8           `json:"slot,omitempty"`
	Party             TradeParty      `json:"party"`
}

// ParseTradeStatus decodes SMSG_TRADE_STATUS.
// Format: [status:4] followed by
//
//	begin trade:        [trader:8]
//	open window:        [trade_id:4]
//	close window:       [result:4][target_error:1][item_limit_category:4]
//	only conjured,
//	not on taplist:     [slot:1]
//	accept:             [party:1]?  absent means the counterpart
func ParseTradeStatus(payload []byte) (*TradeStatus, error) {
	r := NewReader(payload)
	st := &TradeStatus{Status: TradeStatusCode(r.ReadUint32()), Party: TradeCounterpart}
	if err := r.Err("trade status"); err != nil {
		return nil, err
	}

	switch st.Status {
	case TradeStatusBeginTrade:
		st.Trader = r.ReadGUID()
	case TradeStatusOpenWindow:
		st.TradeID = r.ReadUint32()
	case TradeStatusCloseWindow:
		st.Result = r.ReadUint32()
		st.TargetError = r.ReadBool()
		st.ItemLimitCategory = r.ReadUint32()
	case TradeStatusOnlyConjured, TradeStatusNotOnTaplist:
		st.Slot = r.ReadUint8()
	case TradeStatusAccept:
		if r.Remaining() >= 1 {
			st.Party = TradeParty(r.ReadUint8())
		}
	}
	if err := r.Err("trade status tail"); err != nil {
		return nil, err
	}
	if st.Party > TradeCounterpart {
		return nil, fmt.Errorf("trade status: party %d: %w", st.Party, ErrMalformed)
	}
	return st, nil
}

// TradeSlotSize is the wire size of one slot in SMSG_TRADE_STATUS_EXTENDED.
const TradeSlotSize = 73

// TradeSlots is the number of slots each side of a trade window has.
const TradeSlots = 7

// TradeItem is one occupied trade slot.
type TradeItem struct {
	Slot             uint8     `json:"slot"`
	Entry            uint32    `json:"entry"`
	DisplayID        uint32    `json:"display_id"`
	Count            uint32    `json:"count"`
	Wrapped          bool      `json:"wrapped"`
	GiftCreator      GUID      `json:"gift_creator,omitempty"`
	PermanentEnchant uint32    `json:"permanent_enchant,omitempty"`
	SocketEnchants   [3]uint32 `json:"socket_enchants"`
	Creator          GUID      `json:"creator,omitempty"`
	SpellCharges     int32     `json:"spell_charges"`
	SuffixFactor     uint32    `json:"suffix_factor"`
	RandomPropertyID int32     `json:"random_property_id"`
	LockID           uint32    `json:"lock_id"`
	MaxDurability    uint32    `json:"max_durability"`
	Durability       uint32    `json:"durability"`
}

// TradeOffer is one side's current offer.
type TradeOffer struct {
	Party     TradeParty  `json:"party"`
	TradeID   uint32      `json:"trade_id"`
	Gold      uint32      `json:"gold"`
	Spell     uint32      `json:"spell"`
	Items     []TradeItem `json:"items"`
	Truncated bool        `json:"truncated"`
}

// ParseTradeStatusExtended decodes SMSG_TRADE_STATUS_EXTENDED. Empty slots
// (entry 0) are omitted from Items.
// Format: [party:1][trade_id:4][slot_count:4][slot_count:4][gold:4][spell:4][slot_count x slot:73]
func ParseTradeStatusExtended(payload []byte) (*TradeOffer, error) {
	r := NewReader(payload)
	offer := &TradeOffer{}
	offer.Party = TradeParty(r.ReadUint8())
	offer.TradeID = r.ReadUint32()
	slots := r.ReadUint32()
	r.Skip(4)
	offer.Gold = r.ReadUint32()
	offer.Spell = r.ReadUint32()
	if err := r.Err("trade status extended"); err != nil {
		return nil, err
	}
	if offer.Party > TradeCounterpart {
		return nil, fmt.Errorf("trade status extended: party %d: %w", offer.Party, ErrMalformed)
	}

	offer.Items = make([]TradeItem, 0, TradeSlots)
	for i := uint32(0); i < slots; i++ {
		if r.Remaining() < TradeSlotSize {
			offer.Truncated = true
			break
		}
		it := readTradeItem(r)
		if it.Entry != 0 {
			offer.Items = append(offer.Items, it)
		}
	}
	return offer, nil
}

func readTradeItem(r *Reader) TradeItem {
	var it TradeItem
	it.Slot = r.ReadUint8()
	it.Entry = r.ReadUint32()
	it.DisplayID = r.ReadUint32()
	it.Count = r.ReadUint32()
	it.Wrapped = r.ReadUint32() != 0
	it.GiftCreator = r.ReadGUID()
	it.PermanentEnchant = r.ReadUint32()
	for i := range it.SocketEnchants {
		it.SocketEnchants[i] = r.ReadUint32()
	}
	it.Creator = r.ReadGUID()
	it.SpellCharges = r.ReadInt32()
	it.SuffixFactor = r.ReadUint32()
	it.RandomPropertyID = r.ReadInt32()
	it.LockID = r.ReadUint32()
	it.MaxDurability = r.ReadUint32()
	it.Durability = r.ReadUint32()
	return it
}

// ---- Builders ----

// BuildInitiateTrade proposes a trade to another player.
// Format: [target:8]
func BuildInitiateTrade(target GUID) []byte {
	return buildGUID(target)
}

// BuildAcceptTrade locks in our side of the trade.
// Format: [unused:4]
func BuildAcceptTrade() []byte {
	return NewPacketBuilder().WriteUint32(0).Build()
}

// BuildSetTradeItem places an inventory item into a trade slot.
// Format: [trade_slot:1][bag:1][slot:1]
func BuildSetTradeItem(tradeSlot, bag, slot uint8) []byte {
	return NewPacketBuilder().WriteUint8(tradeSlot).WriteUint8(bag).WriteUint8(slot).Build()
}

// BuildClearTradeItem empties a trade slot.
// Format: [trade_slot:1]
func BuildClearTradeItem(tradeSlot uint8) []byte {
	return NewPacketBuilder().WriteUint8(tradeSlot).Build()
}

// BuildSetTradeGold sets the copper we offer.
// Format: [gold:4]
func BuildSetTradeGold(gold uint32) []byte {
	return NewPacketBuilder().WriteUint32(gold).Build()
}
