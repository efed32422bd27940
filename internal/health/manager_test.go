package health_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/health"
)

type stubPinger struct {
	rtt   time.Duration
	ok    bool
	err   error
	calls int
}

func (p *stubPinger) Ping(context.Context) (time.Duration, bool, error) {
	p.calls++
	return p.rtt, p.ok, p.err
}

type stubGuild struct{ err error }

func (g stubGuild) RequestRoster(context.Context) error { return g.err }

type stubMirrors map[string]any

func (s stubMirrors) Snapshot() map[string]any { return s }

type stubHeartbeat struct {
	mu   sync.Mutex
	sent []map[string]interface{}
}

func (h *stubHeartbeat) PublishHeartbeat(s map[string]interface{}) {
	h.mu.Lock()
	h.sent = append(h.sent, s)
	h.mu.Unlock()
}

var _ = Describe("Manager", func() {
	var (
		cfg    *config.Config
		bus    *events.EventBus
		pinger *stubPinger
		ctx    = context.Background()
	)

	BeforeEach(func() {
		cfg = config.DefaultConfig()
		cfg.Health.LatencyWarnMs = 100
		bus = events.NewEventBus(zerolog.Nop())
		pinger = &stubPinger{ok: true, rtt: 20 * time.Millisecond}
	})

	AfterEach(func() {
		bus.Stop()
	})

	Describe("CheckLatency()", func() {
		It("records the round trip", func() {
			m := health.NewManager(cfg, bus, health.Deps{Pinger: pinger})
			m.CheckLatency(ctx)
			Expect(m.Status().LastRTT).To(Equal(20 * time.Millisecond))
			Expect(m.Status().LatencyAlerts).To(BeZero())
		})

		It("raises EventLatencyHigh above the threshold", func() {
			got := make(chan events.LatencyPayload, 1)
			bus.Subscribe(events.EventLatencyHigh, "test", func(_ context.Context, e events.Event) error {
				got <- e.Payload.(events.LatencyPayload)
				return nil
			})

			pinger.rtt = 250 * time.Millisecond
			m := health.NewManager(cfg, bus, health.Deps{Pinger: pinger})
			m.CheckLatency(ctx)

			var p events.LatencyPayload
			Eventually(got).Should(Receive(&p))
			Expect(p.RTT).To(Equal(250 * time.Millisecond))
			Expect(p.Threshold).To(Equal(100 * time.Millisecond))
			Expect(m.Status().LatencyAlerts).To(Equal(1))
		})

		It("counts missing pongs", func() {
			pinger.ok = false
			m := health.NewManager(cfg, bus, health.Deps{Pinger: pinger})
			m.CheckLatency(ctx)
			Expect(m.Status().MissedPongs).To(Equal(1))
			Expect(m.Status().LastRTT).To(BeZero())
		})

		It("skips the ping while disconnected", func() {
			m := health.NewManager(cfg, bus, health.Deps{
				Pinger:    pinger,
				Connected: func() bool { return false },
			})
			m.CheckLatency(ctx)
			Expect(pinger.calls).To(BeZero())
		})

		It("ignores send failures", func() {
			pinger.err = errors.New("broken pipe")
			m := health.NewManager(cfg, bus, health.Deps{Pinger: pinger})
			m.CheckLatency(ctx)
			Expect(m.Status().LastPing.IsZero()).To(BeTrue())
		})
	})

	Describe("RefreshRoster()", func() {
		It("stamps successful refreshes only", func() {
			m := health.NewManager(cfg, bus, health.Deps{Guild: stubGuild{err: errors.New("down")}})
			m.RefreshRoster(ctx)
			Expect(m.Status().LastRoster.IsZero()).To(BeTrue())

			m = health.NewManager(cfg, bus, health.Deps{Guild: stubGuild{}})
			m.RefreshRoster(ctx)
			Expect(m.Status().LastRoster.IsZero()).To(BeFalse())
		})
	})

	Describe("PublishHeartbeat()", func() {
		It("publishes the mirror snapshot", func() {
			hb := &stubHeartbeat{}
			m := health.NewManager(cfg, bus, health.Deps{
				Mirrors:   stubMirrors{"bank": 1},
				Heartbeat: hb,
			})
			m.PublishHeartbeat(ctx)
			Expect(hb.sent).To(HaveLen(1))
			Expect(hb.sent[0]).To(HaveKeyWithValue("bank", 1))
			Expect(m.Status().Heartbeats).To(Equal(1))
		})
	})

	Describe("Start()", func() {
		It("runs every check once on startup and stops with the context", func() {
			cfg.Capture.Enabled = false
			hb := &stubHeartbeat{}
			m := health.NewManager(cfg, bus, health.Deps{
				Pinger:    pinger,
				Mirrors:   stubMirrors{},
				Heartbeat: hb,
			})

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				m.Start(runCtx)
			}()

			Eventually(func() int { return m.Status().Heartbeats }).Should(Equal(1))
			Eventually(func() time.Duration { return m.Status().LastRTT }).Should(Equal(20 * time.Millisecond))
			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
