package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/cli"
	"github.com/energizer-project/realmlink/internal/config"
	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/facade"
	"github.com/energizer-project/realmlink/internal/network"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

const player protocol.GUID = 0x42

type stubCaptures []db.Session

func (s stubCaptures) Sessions() ([]db.Session, error) { return s, nil }

var _ = Describe("CLI", func() {
	var (
		loop *network.Loopback
		set  *facade.Set
		cfg  *config.Config
		bus  *events.EventBus
		dir  string
	)

	BeforeEach(func() {
		loop = network.NewLoopback()
		r := router.New(loop, zerolog.Nop(), nil)
		loop.SetLossHandler(r.NotifyConnectionLost)
		set = facade.NewSet(r, facade.SetConfig{Player: player}, subsystem.Options{
			Logger:             zerolog.Nop(),
			CorrelationTimeout: 50 * time.Millisecond,
		})

		var err error
		dir, err = os.MkdirTemp("", "realmlink-cli")
		Expect(err).NotTo(HaveOccurred())
		cfg = config.DefaultConfig()
		cfg.SetPath(filepath.Join(dir, "config.json"))
		bus = events.NewEventBus(zerolog.Nop())
	})

	AfterEach(func() {
		bus.Stop()
		Expect(set.Dispose()).To(Succeed())
		Expect(loop.Close()).To(Succeed())
		os.RemoveAll(dir)
	})

	run := func(input string, captures cli.CaptureLister) string {
		var out bytes.Buffer
		c := cli.NewCLI(cfg, bus, set, cli.Deps{
			Connected: loop.Connected,
			Captures:  captures,
			In:        strings.NewReader(input),
			Out:       &out,
		})
		c.Start(context.Background())
		return out.String()
	}

	It("prints the session overview", func() {
		out := run("status\n", nil)
		Expect(out).To(ContainSubstring("127.0.0.1:8085"))
		Expect(out).To(ContainSubstring("0x0000000000000042"))
		Expect(out).To(MatchRegexp(`Connected\s*\|\s*yes`))
	})

	It("lists every subsystem", func() {
		out := run("subsystems\n", nil)
		for _, name := range set.SubsystemNames() {
			Expect(out).To(ContainSubstring(name))
		}
	})

	It("sends a selection for target", func() {
		out := run("target 0xF130001234005678\n", nil)
		Expect(out).To(ContainSubstring("Selection sent for 0xF130001234005678"))
		Expect(loop.SentOf(protocol.CmsgSetSelection)).To(HaveLen(1))
	})

	It("attacks even when the selection is not confirmed", func() {
		out := run("attack 0xF130001234005678\n", nil)
		Expect(out).To(ContainSubstring("selection timed_out"))
		Expect(loop.SentOf(protocol.CmsgAttackSwing)).To(HaveLen(1))
	})

	It("reports facade errors without leaving the loop", func() {
		out := run("stop\nsearch Linen\ntarget nope\nhelp\n", nil)
		Expect(out).To(ContainSubstring("Error: combat: cannot stop attack"))
		Expect(out).To(ContainSubstring("Error: auction: cannot search"))
		Expect(out).To(ContainSubstring("Error: invalid GUID: nope"))
		Expect(out).To(ContainSubstring("realmlink CLI Commands"))
	})

	It("says so when there is nothing to show", func() {
		out := run("auctions\nroster\ncaptures\n", nil)
		Expect(out).To(ContainSubstring("No auction listings"))
		Expect(out).To(ContainSubstring("No guild roster yet"))
		Expect(out).To(ContainSubstring("Error: capture store disabled"))
	})

	It("lists captures", func() {
		started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		out := run("captures\n", stubCaptures{{ID: 3, Address: "realm:8085", Player: "0x42", StartedAt: started, Messages: 12}})
		Expect(out).To(ContainSubstring("realm:8085"))
		Expect(out).To(ContainSubstring("2024-03-01T12:00:00Z"))
		Expect(out).To(MatchRegexp(`\|\s*12\s*\|`))
	})

	It("updates and saves a config value", func() {
		out := run("setconfig session.feed_buffer 128\nsetconfig bad 1\n", nil)
		Expect(out).To(ContainSubstring("Config updated: session.feed_buffer = 128"))
		Expect(out).To(ContainSubstring("Error: key must be section.key"))
		Expect(cfg.GetSession().FeedBuffer).To(Equal(128))
		Expect(cfg.Path()).To(BeAnExistingFile())
	})

	It("stops at quit and announces shutdown", func() {
		shutdown := make(chan struct{}, 1)
		bus.Subscribe(events.EventShutdown, "test", func(context.Context, events.Event) error {
			shutdown <- struct{}{}
			return nil
		})

		out := run("quit\nstatus\n", nil)
		Expect(out).To(ContainSubstring("Shutting down realmlink"))
		Expect(out).NotTo(ContainSubstring("Connected"))
		Eventually(shutdown).Should(Receive())
	})

	It("flags unknown commands", func() {
		Expect(run("dance\n", nil)).To(ContainSubstring("Unknown command: 'dance'"))
	})

	It("lists the messages of one session", func() {
		var out bytes.Buffer
		cli.WriteMessages(&out, []db.CapturedMessage{{
			Seq:       1,
			Direction: network.DirectionInbound,
			Opcode:    protocol.SmsgPong,
			Payload:   []byte{1, 0, 0, 0},
			At:        time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC),
		}})
		Expect(out.String()).To(ContainSubstring("12:00:05.000"))
		Expect(out.String()).To(ContainSubstring(protocol.SmsgPong.String()))
		Expect(out.String()).To(MatchRegexp(`\|\s*4\s*\|`))

		out.Reset()
		cli.WriteMessages(&out, nil)
		Expect(out.String()).To(ContainSubstring("Session holds no messages"))
	})
})
