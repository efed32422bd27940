package protocol_test

import (
	"bytes"
	"compress/zlib"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/energizer-project/realmlink/internal/protocol"
)

func auctionEntry(id, item, timeLeftMs uint32, owner protocol.GUID, buyout uint32) []byte {
	b := join(u32(id), u32(item))
	for i := 0; i < 7; i++ {
		b = join(b, u32(0), u32(0), u32(0))
	}
	b = join(b,
		u32(0),             // random property
		u32(0),             // suffix factor
		u32(1),             // count
		u32(0),             // spell charges
		u32(0),             // flags
		u64(uint64(owner)), // owner
		u32(10),            // start bid
		u32(1),             // min outbid
		u32(buyout),        // buyout
		u32(timeLeftMs),    // time left
		u64(0),             // bidder
		u32(0),             // bid
	)
	return b
}

var _ = Describe("Parsers", func() {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	Describe("ParseAuctionList", func() {
		var full []byte

		BeforeEach(func() {
			full = join(
				u32(3),
				auctionEntry(1, 2589, 60000, 7, 100),
				auctionEntry(2, 2589, 120000, 7, 200),
				auctionEntry(3, 4306, 0, 8, 300),
				u32(42),
			)
		})

		It("decodes every entry and the trailing total from the minimum payload", func() {
			Expect(full).To(HaveLen(4 + 3*protocol.AuctionEntrySize + 4))

			list, err := protocol.ParseAuctionList(full, now)
			Expect(err).To(Succeed())
			Expect(list.Entries).To(HaveLen(3))
			Expect(list.Truncated).To(BeFalse())
			Expect(list.TotalKnown).To(BeTrue())
			Expect(list.Total).To(Equal(uint32(42)))
			Expect(list.SearchDelay).To(BeZero())

			Expect(list.Entries[0].ID).To(Equal(uint32(1)))
			Expect(list.Entries[1].Buyout).To(Equal(uint32(200)))
			Expect(list.Entries[1].ExpiresAt).To(Equal(now.Add(2 * time.Minute)))
			Expect(list.Entries[2].Owner).To(Equal(protocol.GUID(8)))
		})

		It("keeps the whole entries of a truncated payload without failing", func() {
			cut := full[:4+3*protocol.AuctionEntrySize-10]

			list, err := protocol.ParseAuctionList(cut, now)
			Expect(err).To(Succeed())
			Expect(len(list.Entries)).To(BeNumerically("<", 3))
			Expect(list.Entries).To(HaveLen(2))
			Expect(list.Truncated).To(BeTrue())
			Expect(list.TotalKnown).To(BeFalse())
		})

		It("reads the search delay when present", func() {
			list, err := protocol.ParseAuctionList(join(full, u32(300)), now)
			Expect(err).To(Succeed())
			Expect(list.SearchDelay).To(Equal(uint32(300)))
		})

		It("never panics on any prefix", func() {
			for n := 0; n <= len(full); n++ {
				Expect(func() { _, _ = protocol.ParseAuctionList(full[:n], now) }).NotTo(Panic())
			}
		})

		It("requires the count field", func() {
			_, err := protocol.ParseAuctionList([]byte{1, 0}, now)
			Expect(errors.Is(err, protocol.ErrShortPacket)).To(BeTrue())
		})
	})

	Describe("ParseAuctionCommandResult", func() {
		It("reads the leading bid for an outbid failure", func() {
			payload := join(u32(77), u32(uint32(protocol.AuctionActionBid)), u32(uint32(protocol.AuctionErrHigherBid)),
				u64(0x99), u32(5500), u32(50))

			res, err := protocol.ParseAuctionCommandResult(payload)
			Expect(err).To(Succeed())
			Expect(res.Succeeded()).To(BeFalse())
			Expect(res.HighBidder).To(Equal(protocol.GUID(0x99)))
			Expect(res.HighBid).To(Equal(uint32(5500)))
			Expect(res.OutbidIncrement).To(Equal(uint32(50)))
		})

		It("reads the bonus amount for a successful bid", func() {
			payload := join(u32(77), u32(uint32(protocol.AuctionActionBid)), u32(uint32(protocol.AuctionOK)), u32(25))

			res, err := protocol.ParseAuctionCommandResult(payload)
			Expect(err).To(Succeed())
			Expect(res.Succeeded()).To(BeTrue())
			Expect(res.OutbidIncrement).To(Equal(uint32(25)))
			Expect(res.HighBid).To(BeZero())
			Expect(res.HighBidder.IsEmpty()).To(BeTrue())
		})

		It("reads no tail for a successful sale", func() {
			res, err := protocol.ParseAuctionCommandResult(join(u32(5), u32(0), u32(0)))
			Expect(err).To(Succeed())
			Expect(res.OutbidIncrement).To(BeZero())
		})

		It("fails when a required tail is missing", func() {
			payload := join(u32(5), u32(2), u32(uint32(protocol.AuctionErrHigherBid)), u64(1))
			_, err := protocol.ParseAuctionCommandResult(payload)
			Expect(errors.Is(err, protocol.ErrShortPacket)).To(BeTrue())
		})
	})

	Describe("ParseTradeStatus", func() {
		It("reads the trader for a proposal", func() {
			st, err := protocol.ParseTradeStatus(join(u32(uint32(protocol.TradeStatusBeginTrade)), u64(7)))
			Expect(err).To(Succeed())
			Expect(st.Trader).To(Equal(protocol.GUID(7)))
		})

		It("reads the close window tail", func() {
			st, err := protocol.ParseTradeStatus(join(u32(uint32(protocol.TradeStatusCloseWindow)), u32(3), u8(1), u32(9)))
			Expect(err).To(Succeed())
			Expect(st.Result).To(Equal(uint32(3)))
			Expect(st.TargetError).To(BeTrue())
			Expect(st.ItemLimitCategory).To(Equal(uint32(9)))
		})

		It("defaults an accept without a party byte to the counterpart", func() {
			st, err := protocol.ParseTradeStatus(u32(uint32(protocol.TradeStatusAccept)))
			Expect(err).To(Succeed())
			Expect(st.Party).To(Equal(protocol.TradeCounterpart))

			st, err = protocol.ParseTradeStatus(join(u32(uint32(protocol.TradeStatusAccept)), u8(0)))
			Expect(err).To(Succeed())
			Expect(st.Party).To(Equal(protocol.TradeSelf))
		})

		It("rejects an accept naming an unknown party", func() {
			st, err := protocol.ParseTradeStatus(join(u32(uint32(protocol.TradeStatusAccept)), u8(7)))
			Expect(st).To(BeNil())
			Expect(errors.Is(err, protocol.ErrMalformed)).To(BeTrue())
			Expect(protocol.TradeParty(7).String()).To(Equal("party(7)"))
		})

		It("fails when a conditional tail is short", func() {
			_, err := protocol.ParseTradeStatus(join(u32(uint32(protocol.TradeStatusOpenWindow)), u16(1)))
			Expect(errors.Is(err, protocol.ErrShortPacket)).To(BeTrue())
		})
	})

	Describe("ParseTradeStatusExtended", func() {
		slot := func(idx uint8, entry, count uint32) []byte {
			b := join(u8(idx), u32(entry), u32(0), u32(count))
			return join(b, make([]byte, protocol.TradeSlotSize-len(b)))
		}

		It("omits empty slots and reads gold", func() {
			payload := join(u8(1), u32(4), u32(2), u32(2), u32(5000), u32(0),
				slot(0, 2589, 20), slot(1, 0, 0))

			offer, err := protocol.ParseTradeStatusExtended(payload)
			Expect(err).To(Succeed())
			Expect(offer.Party).To(Equal(protocol.TradeCounterpart))
			Expect(offer.Gold).To(Equal(uint32(5000)))
			Expect(offer.Items).To(HaveLen(1))
			Expect(offer.Items[0].Count).To(Equal(uint32(20)))
		})

		It("rejects an unknown party", func() {
			_, err := protocol.ParseTradeStatusExtended(join(u8(5), u32(0), u32(0), u32(0), u32(0), u32(0)))
			Expect(errors.Is(err, protocol.ErrMalformed)).To(BeTrue())
		})
	})

	Describe("ParseInventoryChangeFailure", func() {
		It("returns only the code for success", func() {
			f, err := protocol.ParseInventoryChangeFailure(u8(0))
			Expect(err).To(Succeed())
			Expect(f.Item.IsEmpty()).To(BeTrue())
		})

		It("reads the required level for level errors", func() {
			f, err := protocol.ParseInventoryChangeFailure(join(u8(1), u64(3), u64(0), u8(0), u32(40)))
			Expect(err).To(Succeed())
			Expect(f.RequiredLevel).To(Equal(uint32(40)))
		})
	})

	Describe("ParseItemPushResult", func() {
		It("decodes the fixed layout", func() {
			payload := join(u64(7), u32(1), u32(0), u32(1), u8(255), u32(23), u32(2589), u32(0), u32(0), u32(5), u32(25))
			Expect(payload).To(HaveLen(protocol.ItemPushResultSize))

			p, err := protocol.ParseItemPushResult(payload)
			Expect(err).To(Succeed())
			Expect(p.FromNPC).To(BeTrue())
			Expect(p.Created).To(BeFalse())
			Expect(p.Entry).To(Equal(uint32(2589)))
			Expect(p.InventoryCount).To(Equal(uint32(25)))
		})
	})

	Describe("ParseNameQueryResponse", func() {
		It("decodes a known character", func() {
			payload := join([]byte{0x01, 0x07}, u8(0), cstr("Thrall"), cstr(""), u8(2), u8(0), u8(7), u8(0))

			n, err := protocol.ParseNameQueryResponse(payload)
			Expect(err).To(Succeed())
			Expect(n.Known).To(BeTrue())
			Expect(n.GUID).To(Equal(protocol.GUID(7)))
			Expect(n.Name).To(Equal("Thrall"))
			Expect(n.Class).To(Equal(uint8(7)))
			Expect(n.Declined).To(BeEmpty())
		})

		It("reports an unknown character", func() {
			n, err := protocol.ParseNameQueryResponse([]byte{0x01, 0x07, 0x01})
			Expect(err).To(Succeed())
			Expect(n.Known).To(BeFalse())
		})
	})

	Describe("ParseGuildRoster", func() {
		It("turns offline days into a last seen time", func() {
			rank := join(u32(0xFF), u32(100), make([]byte, protocol.GuildRankSize-8))
			payload := join(
				u32(2), cstr("Welcome"), cstr("Info"), u32(1), rank,
				u64(1), u8(1), cstr("Online"), u32(0), u8(80), u8(1), u8(0), u32(1519), cstr(""), cstr(""),
				u64(2), u8(0), cstr("Away"), u32(0), u8(70), u8(4), u8(1), u32(12), u32(0x40000000), cstr("alt"), cstr(""),
			)

			roster, err := protocol.ParseGuildRoster(payload, now)
			Expect(err).To(Succeed())
			Expect(roster.MOTD).To(Equal("Welcome"))
			Expect(roster.Ranks).To(HaveLen(1))
			Expect(roster.Members).To(HaveLen(2))
			Expect(roster.Members[0].LastSeen).To(Equal(now))
			Expect(roster.Members[1].LastSeen).To(Equal(now.Add(-48 * time.Hour)))
			Expect(roster.Members[1].Note).To(Equal("alt"))
			Expect(roster.Truncated).To(BeFalse())
		})

		It("keeps members decoded before a cut", func() {
			payload := join(u32(2), cstr(""), cstr(""), u32(0),
				u64(1), u8(1), cstr("One"), u32(0), u8(80), u8(1), u8(0), u32(1), cstr(""), cstr(""),
				u64(2), u8(0))

			roster, err := protocol.ParseGuildRoster(payload, now)
			Expect(err).To(Succeed())
			Expect(roster.Members).To(HaveLen(1))
			Expect(roster.Truncated).To(BeTrue())
		})
	})

	Describe("ParseGuildEvent", func() {
		It("reads the optional trailing guid", func() {
			ev, err := protocol.ParseGuildEvent(join(u8(uint8(protocol.GuildEventSignedOn)), u8(1), cstr("Jaina"), u64(9)))
			Expect(err).To(Succeed())
			Expect(ev.Strings).To(Equal([]string{"Jaina"}))
			Expect(ev.GUID).To(Equal(protocol.GUID(9)))

			ev, err = protocol.ParseGuildEvent(join(u8(uint8(protocol.GuildEventDisbanded)), u8(0)))
			Expect(err).To(Succeed())
			Expect(ev.GUID.IsEmpty()).To(BeTrue())
		})
	})

	Describe("ParseGuildBankList", func() {
		It("reads tabs and the conditional item fields", func() {
			payload := join(
				u64(123456), u8(0), u32(5), u8(1),
				u8(1), cstr("Mats"), cstr("INV_Misc_Bag_01"),
				u8(3),
				u8(0), u32(0),
				u8(1), u32(2589), u32(0), u32(0), u32(20), u32(0), u8(0), u8(0),
				u8(2), u32(4306), u32(0), u32(7), u32(55), u32(1), u32(0), u8(0), u8(1), u8(0), u32(3000),
			)

			list, err := protocol.ParseGuildBankList(payload)
			Expect(err).To(Succeed())
			Expect(list.Money).To(Equal(uint64(123456)))
			Expect(list.Tabs).To(Equal([]protocol.GuildBankTab{{Name: "Mats", Icon: "INV_Misc_Bag_01"}}))
			Expect(list.Items).To(HaveLen(2))
			Expect(list.Items[0].Count).To(Equal(uint32(20)))
			Expect(list.Items[1].SuffixFactor).To(Equal(uint32(55)))
			Expect(list.Items[1].Enchants).To(Equal([]protocol.GuildBankEnchant{{Socket: 0, ID: 3000}}))
			Expect(list.Truncated).To(BeFalse())
		})
	})

	Describe("ParseShowTaxiNodes", func() {
		It("expands the node mask", func() {
			payload := join(u32(1), u64(0x42), u32(2), u32(0x00000006), u32(0x00000001))

			m, err := protocol.ParseShowTaxiNodes(payload)
			Expect(err).To(Succeed())
			Expect(m.Current).To(Equal(uint32(2)))
			Expect(m.Known).To(Equal([]uint32{1, 2, 32}))
		})
	})

	Describe("ParseUpdateObject", func() {
		It("decodes values blocks and stops at other block types", func() {
			values := protocol.BuildValuesBlock(7, map[uint16]uint32{
				protocol.UnitFieldTarget:   0x42,
				protocol.UnitFieldTargetHi: 0xF1300000,
			})
			payload := protocol.BuildUpdateObject(values, []byte{protocol.UpdateTypeCreate, 0x01, 0x09})

			upd, err := protocol.ParseUpdateObject(payload)
			Expect(err).To(Succeed())
			Expect(upd.Values).To(HaveLen(1))
			Expect(upd.Undecoded).To(Equal(1))
			Expect(upd.Values[0].GUID).To(Equal(protocol.GUID(7)))

			lo, ok := upd.Values[0].Field(protocol.UnitFieldTarget)
			Expect(ok).To(BeTrue())
			Expect(lo).To(Equal(uint32(0x42)))
		})

		It("inflates the compressed variant", func() {
			body := protocol.BuildUpdateObject(protocol.BuildValuesBlock(7, map[uint16]uint32{protocol.UnitFieldTarget: 5}))
			var z bytes.Buffer
			w := zlib.NewWriter(&z)
			_, _ = w.Write(body)
			Expect(w.Close()).To(Succeed())

			upd, err := protocol.ParseCompressedUpdateObject(join(u32(uint32(len(body))), z.Bytes()))
			Expect(err).To(Succeed())
			Expect(upd.Values).To(HaveLen(1))
		})
	})

	Describe("ParsePong", func() {
		It("requires the sequence", func() {
			_, err := protocol.ParsePong(u16(1))
			Expect(errors.Is(err, protocol.ErrShortPacket)).To(BeTrue())

			p, err := protocol.ParsePong(u32(9))
			Expect(err).To(Succeed())
			Expect(p.Seq).To(Equal(uint32(9)))
		})
	})
})
