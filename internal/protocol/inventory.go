package protocol

// InventoryError is the result byte of SMSG_INVENTORY_CHANGE_FAILURE.
type InventoryError uint8

const (
	InventoryOK                  InventoryError = 0
	InventoryCantEquipLevel      InventoryError = 1
	InventoryBagFull             InventoryError = 50
	InventoryPurchaseLevelTooLow InventoryError = 53
)

// InventoryFailure is a decoded SMSG_INVENTORY_CHANGE_FAILURE.
type InventoryFailure struct {
	Error         InventoryError `json:"error"`
	Item          GUID           `json:"item,omitempty"`
	OtherItem     GUID           `json:"other_item,omitempty"`
	BagSubclass   uint8          `json:"bag_subclass,omitempty"`
	RequiredLevel uint32         `json:"required_level,omitempty"`
}

// ParseInventoryChangeFailure decodes SMSG_INVENTORY_CHANGE_FAILURE.
// Format: [error:1] then, when error != 0, [item:8][other_item:8][bag_subclass:1]
// and, for the level errors, [required_level:4].
func ParseInventoryChangeFailure(payload []byte) (*InventoryFailure, error) {
	r := NewReader(payload)
	f := &InventoryFailure{Error: InventoryError(r.ReadUint8())}
	if err := r.Err("inventory change failure"); err != nil {
		return nil, err
	}
	if f.Error == InventoryOK {
		return f, nil
	}

	f.Item = r.ReadGUID()
	f.OtherItem = r.ReadGUID()
	f.BagSubclass = r.ReadUint8()
	if f.Error == InventoryCantEquipLevel || f.Error == InventoryPurchaseLevelTooLow {
		f.RequiredLevel = r.ReadUint32()
	}
	if err := r.Err("inventory change failure tail"); err != nil {
		return nil, err
	}
	return f, nil
}

// ItemPushResultSize is the fixed size of SMSG_ITEM_PUSH_RESULT.
const ItemPushResultSize = 45

// ItemPush records an item arriving in (or moving within) the inventory.
type ItemPush struct {
	Player           GUID   `json:"player"`
	FromNPC          bool   `json:"from_npc"`
	Created          bool   `json:"created"`
	ShowInChat       bool   `json:"show_in_chat"`
	Bag              uint8  `json:"bag"`
	Slot             uint32 `json:"slot"`
	Entry            uint32 `json:"entry"`
	SuffixFactor     uint32 `json:"suffix_factor"`
	RandomPropertyID int32  `json:"random_property_id"`
	Count            uint32 `json:"count"`
	InventoryCount   uint32 `json:"inventory_count"`
}

// ParseItemPushResult decodes SMSG_ITEM_PUSH_RESULT.
// Format: [player:8][from_npc:4][created:4][show_in_chat:4][bag:1][slot:4][entry:4][suffix:4][random_prop:4][count:4][inventory_count:4]
func ParseItemPushResult(payload []byte) (*ItemPush, error) {
	r := NewReader(payload)
	p := &ItemPush{
		Player:           r.ReadGUID(),
		FromNPC:          r.ReadUint32() != 0,
		Created:          r.ReadUint32() != 0,
		ShowInChat:       r.ReadUint32() != 0,
		Bag:              r.ReadUint8(),
		Slot:             r.ReadUint32(),
		Entry:            r.ReadUint32(),
		SuffixFactor:     r.ReadUint32(),
		RandomPropertyID: r.ReadInt32(),
		Count:            r.ReadUint32(),
		InventoryCount:   r.ReadUint32(),
	}
	if err := r.Err("item push result"); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildSwapItem moves an item between two bag positions.
// Format: [dst_bag:1][dst_slot:1][src_bag:1][src_slot:1]
func BuildSwapItem(dstBag, dstSlot, srcBag, srcSlot uint8) []byte {
	return NewPacketBuilder().
		WriteUint8(dstBag).WriteUint8(dstSlot).
		WriteUint8(srcBag).WriteUint8(srcSlot).
		Build()
}

// BuildSwapInvItem swaps two slots of the backpack or equipment.
// Format: [src_slot:1][dst_slot:1]
func BuildSwapInvItem(srcSlot, dstSlot uint8) []byte {
	return NewPacketBuilder().WriteUint8(srcSlot).WriteUint8(dstSlot).Build()
}

// BuildSplitItem splits count items off a stack.
// Format: [src_bag:1][src_slot:1][dst_bag:1][dst_slot:1][count:4]
func BuildSplitItem(srcBag, srcSlot, dstBag, dstSlot uint8, count uint32) []byte {
	return NewPacketBuilder().
		WriteUint8(srcBag).WriteUint8(srcSlot).
		WriteUint8(dstBag).WriteUint8(dstSlot).
		WriteUint32(count).
		Build()
}

// BuildDestroyItem destroys count items at a position.
// Format: [bag:1][slot:1][count:1][reserved:3]
func BuildDestroyItem(bag, slot, count uint8) []byte {
	return NewPacketBuilder().
		WriteUint8(bag).WriteUint8(slot).WriteUint8(count).
		WriteBytes([]byte{0, 0, 0}).
		Build()
}
