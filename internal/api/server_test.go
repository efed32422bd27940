package api_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/energizer-project/realmlink/internal/api"
	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/protocol"
)

func selectionConfirmed(target protocol.GUID) []byte {
	return protocol.BuildUpdateObject(protocol.BuildValuesBlock(player, map[uint16]uint32{
		protocol.UnitFieldTarget:   uint32(target),
		protocol.UnitFieldTargetHi: uint32(uint64(target) >> 32),
	}))
}

var _ = Describe("Server", func() {
	var f *fixture

	AfterEach(func() { f.close() })

	Describe("public routes", func() {
		BeforeEach(func() { f = newFixture(nil) })

		It("answers ping with the connection state", func() {
			rec := f.do(http.MethodGet, "/api/public/ping", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("connected", true))
			Expect(rec.Header().Get("Server")).To(Equal("realmlink"))
		})

		It("reports the version", func() {
			rec := f.do(http.MethodGet, "/api/public/version", nil)
			Expect(decode(rec)).To(HaveKeyWithValue("version", "1.2.3"))
		})

		It("serves prometheus metrics", func() {
			rec := f.do(http.MethodGet, "/metrics", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("answers 404 for unknown API paths", func() {
			Expect(f.do(http.MethodGet, "/api/nope", nil).Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("token", func() {
		BeforeEach(func() {
			f = newFixture(func(cfg *config.Config, _ *api.Deps) { cfg.API.Token = "s3cret" })
		})

		It("guards everything outside /api/public", func() {
			Expect(f.do(http.MethodGet, "/api/public/ping", nil).Code).To(Equal(http.StatusOK))
			Expect(f.do(http.MethodGet, "/api/subsystems", nil).Code).To(Equal(http.StatusUnauthorized))
			Expect(f.do(http.MethodGet, "/api/subsystems", nil, "Authorization", "Bearer wrong").Code).
				To(Equal(http.StatusUnauthorized))
			Expect(f.do(http.MethodGet, "/api/subsystems", nil, "Authorization", "Bearer s3cret").Code).
				To(Equal(http.StatusOK))
		})

		It("masks the token in the config dump", func() {
			rec := f.do(http.MethodGet, "/api/config", nil, "Authorization", "Bearer s3cret")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).NotTo(ContainSubstring("s3cret"))
		})
	})

	Describe("monitor routes", func() {
		BeforeEach(func() {
			f = newFixture(func(_ *config.Config, d *api.Deps) {
				d.Captures = stubCaptures{sessions: []db.Session{{ID: 7, Address: "realm:8085", Messages: 3}}}
			})
		})

		It("lists every subsystem with its mirror", func() {
			rec := f.do(http.MethodGet, "/api/subsystems", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body).To(HaveKeyWithValue("total", BeEquivalentTo(11)))
		})

		It("returns one subsystem by name", func() {
			rec := f.do(http.MethodGet, "/api/subsystems/combat", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body).To(HaveKeyWithValue("name", "combat"))
			Expect(body["mirror"]).To(HaveKeyWithValue("attacking", false))

			Expect(f.do(http.MethodGet, "/api/subsystems/nope", nil).Code).To(Equal(http.StatusNotFound))
		})

		It("reports status", func() {
			rec := f.do(http.MethodGet, "/api/status", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body).To(HaveKeyWithValue("connected", true))
			Expect(body).To(HaveKey("system"))
			Expect(body["subsystems"]).To(ContainElement("trade"))
		})

		It("lists captures", func() {
			rec := f.do(http.MethodGet, "/api/captures", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("total", BeEquivalentTo(1)))
		})

		It("reads the newest log file", func() {
			older := `{"level":"info","message":"old"}` + "\n"
			newer := `{"level":"warn","time":"t","message":"hello","component":"client"}` + "\nplain line\n"
			Expect(os.WriteFile(filepath.Join(f.dir, "realmlink_2024-03-01.log"), []byte(older), 0644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(f.dir, "realmlink_2024-03-02.log"), []byte(newer), 0644)).To(Succeed())

			rec := f.do(http.MethodGet, "/api/logs?count=5", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body).To(HaveKeyWithValue("count", BeEquivalentTo(2)))
			entries := body["entries"].([]interface{})
			Expect(entries[0]).To(HaveKeyWithValue("message", "hello"))
			Expect(entries[0]).To(HaveKeyWithValue("fields", HaveKeyWithValue("component", "client")))
			Expect(entries[1]).To(HaveKeyWithValue("message", "plain line"))
		})
	})

	It("answers 503 for captures when the store is disabled", func() {
		f = newFixture(nil)
		Expect(f.do(http.MethodGet, "/api/captures", nil).Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("answers 500 when the capture store fails", func() {
		f = newFixture(func(_ *config.Config, d *api.Deps) {
			d.Captures = stubCaptures{err: errors.New("disk gone")}
		})
		Expect(f.do(http.MethodGet, "/api/captures", nil).Code).To(Equal(http.StatusInternalServerError))
	})

	Describe("control routes", func() {
		BeforeEach(func() { f = newFixture(nil) })

		It("rejects a malformed GUID", func() {
			rec := f.do(http.MethodPost, "/api/combat/attack", map[string]string{"guid": "zz"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(f.do(http.MethodPost, "/api/combat/attack", nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("attacks once the selection is confirmed", func() {
			f.loop.SetSendHook(func(msg protocol.Message) {
				if msg.Opcode == protocol.CmsgSetSelection {
					f.loop.Inject(protocol.SmsgUpdateObject, selectionConfirmed(creature))
				}
			})

			rec := f.do(http.MethodPost, "/api/combat/attack", map[string]string{"guid": creature.String()})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("outcome", "confirmed"))
			Expect(f.loop.SentOf(protocol.CmsgAttackSwing)).To(HaveLen(1))
		})

		It("still swings when the selection is not confirmed in time", func() {
			rec := f.do(http.MethodPost, "/api/combat/attack", map[string]string{"guid": creature.String()})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("outcome", "timed_out"))
			Expect(f.loop.SentOf(protocol.CmsgAttackSwing)).To(HaveLen(1))
		})

		It("answers 409 when a precondition fails", func() {
			rec := f.do(http.MethodPost, "/api/combat/stop", nil)
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(decode(rec)).To(HaveKeyWithValue("operation", "stop attack"))

			Expect(f.do(http.MethodPost, "/api/auction/search", map[string]string{"name": "Linen"}).Code).
				To(Equal(http.StatusConflict))
		})

		It("answers 503 while the realm is down", func() {
			f.loop.Drop()
			Expect(f.do(http.MethodPost, "/api/trade/cancel", nil).Code).To(Equal(http.StatusServiceUnavailable))
			Expect(f.do(http.MethodPost, "/api/guild/roster", nil).Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("sends trade cancel and roster requests", func() {
			Expect(f.do(http.MethodPost, "/api/trade/cancel", nil).Code).To(Equal(http.StatusOK))
			Expect(f.do(http.MethodPost, "/api/guild/roster", nil).Code).To(Equal(http.StatusAccepted))
			Expect(f.loop.SentOf(protocol.CmsgCancelTrade)).To(HaveLen(1))
		})

		It("searches an open auction house and waits for the page", func() {
			auctioneer := protocol.GUID(0xF130000CCC000003)
			f.loop.Inject(protocol.MsgAuctionHello,
				protocol.NewPacketBuilder().WriteGUID(auctioneer).WriteUint32(7).WriteBool(true).Build())
			Eventually(f.set.Auction.IsOpen).Should(BeTrue())

			f.loop.SetSendHook(func(msg protocol.Message) {
				if msg.Opcode == protocol.CmsgAuctionListItems {
					f.loop.Inject(protocol.SmsgAuctionListResult,
						protocol.NewPacketBuilder().WriteUint32(0).WriteUint32(0).WriteUint32(300).Build())
				}
			})

			rec := f.do(http.MethodPost, "/api/auction/search", map[string]interface{}{"name": "Linen", "wait": true})
			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body).To(HaveKeyWithValue("status", "listed"))
			Expect(body["result"]).To(HaveKeyWithValue("search_delay_ms", BeEquivalentTo(300)))

			sent := f.loop.SentOf(protocol.CmsgAuctionListItems)
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].Payload[:8]).To(Equal(protocol.NewPacketBuilder().WriteGUID(auctioneer).Build()))
		})

		It("reports a ping round trip", func() {
			f.loop.SetSendHook(func(msg protocol.Message) {
				if msg.Opcode == protocol.CmsgPing {
					f.loop.Inject(protocol.SmsgPong, msg.Payload[:4])
				}
			})
			rec := f.do(http.MethodPost, "/api/ping", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("answered", true))
		})
	})

	Describe("config routes", func() {
		BeforeEach(func() { f = newFixture(nil) })

		It("updates, saves and announces a field", func() {
			changed := make(chan events.ConfigChangedPayload, 1)
			f.bus.Subscribe(events.EventConfigChanged, "test", func(_ context.Context, e events.Event) error {
				changed <- e.Payload.(events.ConfigChangedPayload)
				return nil
			})

			rec := f.do(http.MethodPost, "/api/config",
				map[string]interface{}{"section": "session", "key": "feed_buffer", "value": 128})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(f.cfg.GetSession().FeedBuffer).To(Equal(128))
			Expect(f.cfg.Path()).To(BeAnExistingFile())

			var got events.ConfigChangedPayload
			Eventually(changed, time.Second).Should(Receive(&got))
			Expect(got.Section).To(Equal("session"))
			Expect(got.Key).To(Equal("feed_buffer"))
		})

		It("rolls back a change that fails validation", func() {
			rec := f.do(http.MethodPost, "/api/config",
				map[string]interface{}{"section": "realm", "key": "address", "value": "no-port"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(f.cfg.GetRealm().Address).To(Equal("127.0.0.1:8085"))
		})

		It("rejects unknown fields", func() {
			rec := f.do(http.MethodPost, "/api/config",
				map[string]interface{}{"section": "session", "key": "nope", "value": 1})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("RateLimiter", func() {
	It("allows a burst of twice the rate per client", func() {
		rl := api.NewRateLimiter(1)
		Expect(rl.Allow("a")).To(BeTrue())
		Expect(rl.Allow("a")).To(BeTrue())
		Expect(rl.Allow("a")).To(BeFalse())
		Expect(rl.Allow("b")).To(BeTrue())
		Expect(rl.Clients()).To(Equal(2))
	})

	It("is disabled at zero", func() {
		rl := api.NewRateLimiter(0)
		for i := 0; i < 10; i++ {
			Expect(rl.Allow("a")).To(BeTrue())
		}
		Expect(rl.Clients()).To(BeZero())
	})
})
