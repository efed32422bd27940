package protocol

// WindowClosed is the empty SMSG_GOSSIP_COMPLETE confirmation that the
// server has closed whatever NPC window was open.
type WindowClosed struct{}

// ParseGossipComplete decodes SMSG_GOSSIP_COMPLETE. The payload is empty
// and any bytes present are ignored.
func ParseGossipComplete(payload []byte) (*WindowClosed, error) {
	return &WindowClosed{}, nil
}

// BankWindow is the SMSG_SHOW_BANK confirmation.
type BankWindow struct {
	Banker GUID `json:"banker"`
}

// ParseShowBank decodes SMSG_SHOW_BANK.
// Format: [banker:8]
func ParseShowBank(payload []byte) (*BankWindow, error) {
	r := NewReader(payload)
	w := &BankWindow{Banker: r.ReadGUID()}
	if err := r.Err("show bank"); err != nil {
		return nil, err
	}
	return w, nil
}

// BankSlotResult is the outcome of a bank slot purchase.
type BankSlotResult uint32

const (
	BankSlotTooMany           BankSlotResult = 0
	BankSlotInsufficientFunds BankSlotResult = 1
	BankSlotNotBanker         BankSlotResult = 2
	BankSlotOK                BankSlotResult = 3
)

func (r BankSlotResult) String() string {
	switch r {
	case BankSlotTooMany:
		return "too_many"
	case BankSlotInsufficientFunds:
		return "insufficient_funds"
	case BankSlotNotBanker:
		return "not_banker"
	case BankSlotOK:
		return "ok"
	}
	return "unknown"
}

// BuyBankSlotResult is a decoded SMSG_BUY_BANK_SLOT_RESULT.
type BuyBankSlotResult struct {
	Result BankSlotResult `json:"result"`
}

// ParseBuyBankSlotResult decodes SMSG_BUY_BANK_SLOT_RESULT.
// Format: [result:4]
func ParseBuyBankSlotResult(payload []byte) (*BuyBankSlotResult, error) {
	r := NewReader(payload)
	res := &BuyBankSlotResult{Result: BankSlotResult(r.ReadUint32())}
	if err := r.Err("buy bank slot result"); err != nil {
		return nil, err
	}
	return res, nil
}

// BuildBankerActivate asks a banker to open the bank.
// Format: [banker:8]
func BuildBankerActivate(banker GUID) []byte {
	return buildGUID(banker)
}

// BuildBuyBankSlot purchases the next bank bag slot.
// Format: [banker:8]
func BuildBuyBankSlot(banker GUID) []byte {
	return buildGUID(banker)
}

// BuildAutobankItem moves an inventory item into the bank.
// Format: [bag:1][slot:1]
func BuildAutobankItem(bag, slot uint8) []byte {
	return NewPacketBuilder().WriteUint8(bag).WriteUint8(slot).Build()
}

// BuildAutostoreBankItem moves a bank item back into the inventory.
// Format: [bag:1][slot:1]
func BuildAutostoreBankItem(bag, slot uint8) []byte {
	return NewPacketBuilder().WriteUint8(bag).WriteUint8(slot).Build()
}
