// Package protocol implements the binary codec for the world-server message
// family: opcode constants, the bounds-checked cursor, packed identifiers,
// the packet builder, wire framing, and one parser/builder pair per message
// shape. All multi-byte integers are little-endian unless a frame header
// says otherwise.
package protocol

import "fmt"

// Opcode identifies a message shape and its direction.
type Opcode uint16

// String returns the opcode name when known, otherwise its hex value.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("0x%03X", uint16(o))
}

// Message is one raw inbound or outbound payload tagged with its opcode.
// Payload is owned by whoever produced the message; parsers only borrow it.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Name lookup.
const (
	CmsgNameQuery         Opcode = 0x050 // [guid:8]
	SmsgNameQueryResponse Opcode = 0x051 // [packed guid][unknown:1]...
)

// Guild.
const (
	CmsgGuildInvite        Opcode = 0x082 // [name:cstr]
	SmsgGuildInvite        Opcode = 0x083 // [inviter:cstr][guild:cstr]
	CmsgGuildAccept        Opcode = 0x084 // empty
	CmsgGuildDecline       Opcode = 0x085 // empty
	SmsgGuildDecline       Opcode = 0x086 // [name:cstr]
	CmsgGuildRoster        Opcode = 0x089 // empty
	SmsgGuildRoster        Opcode = 0x08A // roster listing
	CmsgGuildPromote       Opcode = 0x08B // [name:cstr]
	CmsgGuildDemote        Opcode = 0x08C // [name:cstr]
	CmsgGuildLeave         Opcode = 0x08D // empty
	CmsgGuildRemove        Opcode = 0x08E // [name:cstr]
	CmsgGuildMotd          Opcode = 0x091 // [motd:cstr]
	SmsgGuildEvent         Opcode = 0x092 // [event:1][count:1][strings...][guid:8]?
	SmsgGuildCommandResult Opcode = 0x093 // [command:4][name:cstr][result:4]
)

// Object updates.
const (
	SmsgUpdateObject Opcode = 0x0A9
)

// Inventory and item movement.
const (
	CmsgSwapItem               Opcode = 0x10C
	CmsgSwapInvItem            Opcode = 0x10D
	CmsgSplitItem              Opcode = 0x10E
	CmsgDestroyItem            Opcode = 0x111
	SmsgInventoryChangeFailure Opcode = 0x112
	SmsgItemPushResult         Opcode = 0x166
)

// Trade.
const (
	CmsgInitiateTrade       Opcode = 0x116
	CmsgBeginTrade          Opcode = 0x117
	CmsgBusyTrade           Opcode = 0x118
	CmsgIgnoreTrade         Opcode = 0x119
	CmsgAcceptTrade         Opcode = 0x11A
	CmsgUnacceptTrade       Opcode = 0x11B
	CmsgCancelTrade         Opcode = 0x11C
	CmsgSetTradeItem        Opcode = 0x11D
	CmsgClearTradeItem      Opcode = 0x11E
	CmsgSetTradeGold        Opcode = 0x11F
	SmsgTradeStatus         Opcode = 0x120
	SmsgTradeStatusExtended Opcode = 0x121
)

// Targeting and melee combat.
const (
	CmsgSetSelection          Opcode = 0x13D
	CmsgAttackSwing           Opcode = 0x141
	CmsgAttackStop            Opcode = 0x142
	SmsgAttackStart           Opcode = 0x143
	SmsgAttackStop            Opcode = 0x144
	SmsgAttackSwingNotInRange Opcode = 0x145
	SmsgAttackSwingBadFacing  Opcode = 0x146
	SmsgAttackSwingDeadTarget Opcode = 0x148
	SmsgAttackSwingCantAttack Opcode = 0x149
)

// NPC interaction windows.
const (
	SmsgGossipComplete Opcode = 0x17F // closes any open NPC window

	SmsgShowTaxiNodes           Opcode = 0x1A9
	CmsgTaxiNodeStatusQuery     Opcode = 0x1AA
	SmsgTaxiNodeStatus          Opcode = 0x1AB
	CmsgTaxiQueryAvailableNodes Opcode = 0x1AC
	CmsgActivateTaxi            Opcode = 0x1AD
	SmsgActivateTaxiReply       Opcode = 0x1AE

	CmsgBankerActivate    Opcode = 0x1B7
	SmsgShowBank          Opcode = 0x1B8
	CmsgBuyBankSlot       Opcode = 0x1B9
	SmsgBuyBankSlotResult Opcode = 0x1BA
	CmsgAutostoreBankItem Opcode = 0x282
	CmsgAutobankItem      Opcode = 0x283
)

// Session keepalive.
const (
	CmsgPing Opcode = 0x1DC // [seq:4][latency:4]
	SmsgPong Opcode = 0x1DD // [seq:4]
)

// Auction house.
const (
	MsgAuctionHello                Opcode = 0x255
	CmsgAuctionSellItem            Opcode = 0x256
	CmsgAuctionRemoveItem          Opcode = 0x257
	CmsgAuctionListItems           Opcode = 0x258
	CmsgAuctionListOwnerItems      Opcode = 0x259
	CmsgAuctionPlaceBid            Opcode = 0x25A
	SmsgAuctionCommandResult       Opcode = 0x25B
	SmsgAuctionListResult          Opcode = 0x25C
	SmsgAuctionOwnerListResult     Opcode = 0x25D
	SmsgAuctionBidderNotification  Opcode = 0x25E
	SmsgAuctionOwnerNotification   Opcode = 0x25F
	CmsgAuctionListBidderItems     Opcode = 0x264
	SmsgAuctionBidderListResult    Opcode = 0x265
	SmsgAuctionRemovedNotification Opcode = 0x28D
)

// Guild bank.
const (
	CmsgGuildBankerActivate    Opcode = 0x3E6
	CmsgGuildBankQueryTab      Opcode = 0x3E7
	SmsgGuildBankList          Opcode = 0x3E8
	CmsgGuildBankDepositMoney  Opcode = 0x3EC
	CmsgGuildBankWithdrawMoney Opcode = 0x3ED
	MsgGuildBankMoneyWithdrawn Opcode = 0x3FE
)

// MaxPacketSize is the largest payload a 2-byte size header can describe.
const MaxPacketSize = 0xFFFF

var opcodeNames = map[Opcode]string{
	CmsgNameQuery:                  "CMSG_NAME_QUERY",
	SmsgNameQueryResponse:          "SMSG_NAME_QUERY_RESPONSE",
	CmsgGuildInvite:                "CMSG_GUILD_INVITE",
	SmsgGuildInvite:                "SMSG_GUILD_INVITE",
	CmsgGuildAccept:                "CMSG_GUILD_ACCEPT",
	CmsgGuildDecline:               "CMSG_GUILD_DECLINE",
	SmsgGuildDecline:               "SMSG_GUILD_DECLINE",
	CmsgGuildRoster:                "CMSG_GUILD_ROSTER",
	SmsgGuildRoster:                "SMSG_GUILD_ROSTER",
	CmsgGuildPromote:               "CMSG_GUILD_PROMOTE",
	CmsgGuildDemote:                "CMSG_GUILD_DEMOTE",
	CmsgGuildLeave:                 "CMSG_GUILD_LEAVE",
	CmsgGuildRemove:                "CMSG_GUILD_REMOVE",
	CmsgGuildMotd:                  "CMSG_GUILD_MOTD",
	SmsgGuildEvent:                 "SMSG_GUILD_EVENT",
	SmsgGuildCommandResult:         "SMSG_GUILD_COMMAND_RESULT",
	SmsgUpdateObject:               "SMSG_UPDATE_OBJECT",
	SmsgCompressedUpdateObject:     "SMSG_COMPRESSED_UPDATE_OBJECT",
	CmsgSwapItem:                   "CMSG_SWAP_ITEM",
	CmsgSwapInvItem:                "CMSG_SWAP_INV_ITEM",
	CmsgSplitItem:                  "CMSG_SPLIT_ITEM",
	CmsgDestroyItem:                "CMSG_DESTROYITEM",
	SmsgInventoryChangeFailure:     "SMSG_INVENTORY_CHANGE_FAILURE",
	SmsgItemPushResult:             "SMSG_ITEM_PUSH_RESULT",
	CmsgInitiateTrade:              "CMSG_INITIATE_TRADE",
	CmsgBeginTrade:                 "CMSG_BEGIN_TRADE",
	CmsgBusyTrade:                  "CMSG_BUSY_TRADE",
	CmsgIgnoreTrade:                "CMSG_IGNORE_TRADE",
	CmsgAcceptTrade:                "CMSG_ACCEPT_TRADE",
	CmsgUnacceptTrade:              "CMSG_UNACCEPT_TRADE",
	CmsgCancelTrade:                "CMSG_CANCEL_TRADE",
	CmsgSetTradeItem:               "CMSG_SET_TRADE_ITEM",
	CmsgClearTradeItem:             "CMSG_CLEAR_TRADE_ITEM",
	CmsgSetTradeGold:               "CMSG_SET_TRADE_GOLD",
	SmsgTradeStatus:                "SMSG_TRADE_STATUS",
	SmsgTradeStatusExtended:        "SMSG_TRADE_STATUS_EXTENDED",
	CmsgSetSelection:               "CMSG_SET_SELECTION",
	CmsgAttackSwing:                "CMSG_ATTACKSWING",
	CmsgAttackStop:                 "CMSG_ATTACKSTOP",
	SmsgAttackStart:                "SMSG_ATTACKSTART",
	SmsgAttackStop:                 "SMSG_ATTACKSTOP",
	SmsgAttackSwingNotInRange:      "SMSG_ATTACKSWING_NOTINRANGE",
	SmsgAttackSwingBadFacing:       "SMSG_ATTACKSWING_BADFACING",
	SmsgAttackSwingDeadTarget:      "SMSG_ATTACKSWING_DEADTARGET",
	SmsgAttackSwingCantAttack:      "SMSG_ATTACKSWING_CANT_ATTACK",
	SmsgGossipComplete:             "SMSG_GOSSIP_COMPLETE",
	SmsgShowTaxiNodes:              "SMSG_SHOWTAXINODES",
	CmsgTaxiNodeStatusQuery:        "CMSG_TAXINODE_STATUS_QUERY",
	SmsgTaxiNodeStatus:             "SMSG_TAXINODE_STATUS",
	CmsgTaxiQueryAvailableNodes:    "CMSG_TAXIQUERYAVAILABLENODES",
	CmsgActivateTaxi:               "CMSG_ACTIVATETAXI",
	SmsgActivateTaxiReply:          "SMSG_ACTIVATETAXIREPLY",
	CmsgBankerActivate:             "CMSG_BANKER_ACTIVATE",
	SmsgShowBank:                   "SMSG_SHOW_BANK",
	CmsgBuyBankSlot:                "CMSG_BUY_BANK_SLOT",
	SmsgBuyBankSlotResult:          "SMSG_BUY_BANK_SLOT_RESULT",
	CmsgAutostoreBankItem:          "CMSG_AUTOSTORE_BANK_ITEM",
	CmsgAutobankItem:               "CMSG_AUTOBANK_ITEM",
	CmsgPing:                       "CMSG_PING",
	SmsgPong:                       "SMSG_PONG",
	MsgAuctionHello:                "MSG_AUCTION_HELLO",
	CmsgAuctionSellItem:            "CMSG_AUCTION_SELL_ITEM",
	CmsgAuctionRemoveItem:          "CMSG_AUCTION_REMOVE_ITEM",
	CmsgAuctionListItems:           "CMSG_AUCTION_LIST_ITEMS",
	CmsgAuctionListOwnerItems:      "CMSG_AUCTION_LIST_OWNER_ITEMS",
	CmsgAuctionPlaceBid:            "CMSG_AUCTION_PLACE_BID",
	SmsgAuctionCommandResult:       "SMSG_AUCTION_COMMAND_RESULT",
	SmsgAuctionListResult:          "SMSG_AUCTION_LIST_RESULT",
	SmsgAuctionOwnerListResult:     "SMSG_AUCTION_OWNER_LIST_RESULT",
	SmsgAuctionBidderNotification:  "SMSG_AUCTION_BIDDER_NOTIFICATION",
	SmsgAuctionOwnerNotification:   "SMSG_AUCTION_OWNER_NOTIFICATION",
	CmsgAuctionListBidderItems:     "CMSG_AUCTION_LIST_BIDDER_ITEMS",
	SmsgAuctionBidderListResult:    "SMSG_AUCTION_BIDDER_LIST_RESULT",
	SmsgAuctionRemovedNotification: "SMSG_AUCTION_REMOVED_NOTIFICATION",
	CmsgGuildBankerActivate:        "CMSG_GUILD_BANKER_ACTIVATE",
	CmsgGuildBankQueryTab:          "CMSG_GUILD_BANK_QUERY_TAB",
	SmsgGuildBankList:              "SMSG_GUILD_BANK_LIST",
	CmsgGuildBankDepositMoney:      "CMSG_GUILD_BANK_DEPOSIT_MONEY",
	CmsgGuildBankWithdrawMoney:     "CMSG_GUILD_BANK_WITHDRAW_MONEY",
	MsgGuildBankMoneyWithdrawn:     "MSG_GUILD_BANK_MONEY_WITHDRAWN",
}
