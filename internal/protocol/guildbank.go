package protocol

// GuildBankTab describes one purchased tab.
type GuildBankTab struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// GuildBankEnchant is one socket enchant on a stored item.
type GuildBankEnchant struct {
	Socket uint8  `json:"socket"`
	ID     uint32 `json:"id"`
}

// GuildBankItem is one occupied slot of a guild bank tab.
type GuildBankItem struct {
	Slot             uint8              `json:"slot"`
	Entry            uint32             `json:"entry"`
	Flags            uint32             `json:"flags"`
	RandomPropertyID uint32             `json:"random_property_id"`
	SuffixFactor     uint32             `json:"suffix_factor,omitempty"`
	Count            uint32             `json:"count"`
	Charges          uint8              `json:"charges"`
	Enchants         []GuildBankEnchant `json:"enchants,omitempty"`
}

// GuildBankList is a decoded SMSG_GUILD_BANK_LIST.
type GuildBankList struct {
	Money           uint64          `json:"money"`
	Tab             uint8           `json:"tab"`
	WithdrawalsLeft int32           `json:"withdrawals_left"`
	Tabs            []GuildBankTab  `json:"tabs,omitempty"`
	HasTabs         bool            `json:"has_tabs"`
	Items           []GuildBankItem `json:"items"`
	Truncated       bool            `json:"truncated"`
}

// ParseGuildBankList decodes SMSG_GUILD_BANK_LIST. Empty slots carry
// only their index and an entry of zero.
// Format: [money:8][tab:1][withdraw_left:4][has_tabs:1]
// [tabs:1][tabs x (name:cstr, icon:cstr)] if has_tabs, then [slots:1] and
// per slot [slot:1][entry:4] followed, when entry != 0, by [flags:4]
// [random_prop:4][suffix:4 if random_prop != 0][count:4][unk:4][charges:1]
// [enchants:1][enchants x (socket:1, id:4)]
func ParseGuildBankList(payload []byte) (*GuildBankList, error) {
	r := NewReader(payload)
	list := &GuildBankList{
		Money:           r.ReadUint64(),
		Tab:             r.ReadUint8(),
		WithdrawalsLeft: r.ReadInt32(),
		HasTabs:         r.ReadBool(),
	}
	if err := r.Err("guild bank list"); err != nil {
		return nil, err
	}

	if list.HasTabs {
		n := int(r.ReadUint8())
		for i := 0; i < n; i++ {
			tab := GuildBankTab{Name: r.ReadCString(), Icon: r.ReadCString()}
			if r.Short() {
				list.Truncated = true
				return list, nil
			}
			list.Tabs = append(list.Tabs, tab)
		}
	}

	slots := int(r.ReadUint8())
	if r.Short() {
		list.Truncated = true
		return list, nil
	}
	list.Items = make([]GuildBankItem, 0, slots)
	for i := 0; i < slots; i++ {
		it, ok := readGuildBankItem(r)
		if !ok {
			list.Truncated = true
			break
		}
		if it.Entry != 0 {
			list.Items = append(list.Items, it)
		}
	}
	return list, nil
}

func readGuildBankItem(r *Reader) (GuildBankItem, bool) {
	it := GuildBankItem{Slot: r.ReadUint8(), Entry: r.ReadUint32()}
	if r.Short() || it.Entry == 0 {
		return it, !r.Short()
	}
	it.Flags = r.ReadUint32()
	it.RandomPropertyID = r.ReadUint32()
	if it.RandomPropertyID != 0 {
		it.SuffixFactor = r.ReadUint32()
	}
	it.Count = r.ReadUint32()
	r.Skip(4)
	it.Charges = r.ReadUint8()
	n := int(r.ReadUint8())
	for j := 0; j < n && !r.Short(); j++ {
		it.Enchants = append(it.Enchants, GuildBankEnchant{Socket: r.ReadUint8(), ID: r.ReadUint32()})
	}
	return it, !r.Short()
}

// GuildBankMoneyWithdrawn reports how much the player may still withdraw
// today.
type GuildBankMoneyWithdrawn struct {
	Remaining int32 `json:"remaining"`
}

// ParseGuildBankMoneyWithdrawn decodes MSG_GUILD_BANK_MONEY_WITHDRAWN.
// Format: [remaining:4]
func ParseGuildBankMoneyWithdrawn(payload []byte) (*GuildBankMoneyWithdrawn, error) {
	r := NewReader(payload)
	m := &GuildBankMoneyWithdrawn{Remaining: r.ReadInt32()}
	if err := r.Err("guild bank money withdrawn"); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildGuildBankerActivate opens the guild vault.
// Format: [banker:8][full_update:1]
func BuildGuildBankerActivate(banker GUID, full bool) []byte {
	return NewPacketBuilder().WriteGUID(banker).WriteBool(full).Build()
}

// BuildGuildBankQueryTab asks for the contents of one tab.
// Format: [banker:8][tab:1][full_update:1]
func BuildGuildBankQueryTab(banker GUID, tab uint8, full bool) []byte {
	return NewPacketBuilder().WriteGUID(banker).WriteUint8(tab).WriteBool(full).Build()
}

// BuildGuildBankMoney is shared by deposit and withdraw.
// Format: [banker:8][amount:4]
func BuildGuildBankMoney(banker GUID, amount uint32) []byte {
	return NewPacketBuilder().WriteGUID(banker).WriteUint32(amount).Build()
}
