package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/protocol"
)

type sink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *sink) handle(_ context.Context, e events.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *sink) received() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(zerolog.Nop())
	})

	AfterEach(func() {
		bus.Stop()
	})

	It("delivers emitted events to every handler of that type", func() {
		a, b, other := &sink{}, &sink{}, &sink{}
		bus.Subscribe(events.EventConnectionLost, "a", a.handle)
		bus.Subscribe(events.EventConnectionLost, "b", b.handle)
		bus.Subscribe(events.EventShutdown, "other", other.handle)

		bus.Emit(context.Background(), events.Event{Type: events.EventConnectionLost, Source: "client"})

		Eventually(a.received).Should(HaveLen(1))
		Eventually(b.received).Should(HaveLen(1))
		Consistently(other.received, 50*time.Millisecond).Should(BeEmpty())
	})

	It("stops delivering to unsubscribed handlers", func() {
		a := &sink{}
		bus.Subscribe(events.EventShutdown, "a", a.handle)
		Expect(bus.HandlerCount(events.EventShutdown)).To(Equal(1))

		bus.Unsubscribe(events.EventShutdown, "a")
		Expect(bus.HandlerCount(events.EventShutdown)).To(BeZero())

		Expect(bus.EmitSync(context.Background(), events.Event{Type: events.EventShutdown})).To(Succeed())
		Expect(a.received()).To(BeEmpty())
	})

	It("returns the first handler error from EmitSync", func() {
		boom := errors.New("boom")
		bus.Subscribe(events.EventShutdown, "fails", func(context.Context, events.Event) error { return boom })

		Expect(bus.EmitSync(context.Background(), events.Event{Type: events.EventShutdown})).To(MatchError(boom))
	})

	It("survives a panicking handler", func() {
		a := &sink{}
		bus.Subscribe(events.EventShutdown, "panics", func(context.Context, events.Event) error { panic("boom") })
		bus.Subscribe(events.EventShutdown, "a", a.handle)

		Expect(func() {
			_ = bus.EmitSync(context.Background(), events.Event{Type: events.EventShutdown})
		}).NotTo(Panic())
		Expect(a.received()).To(HaveLen(1))
	})

	It("delivers to each handler in emit order", func() {
		a := &sink{}
		bus.Subscribe(events.EventRecordDecoded, "a", a.handle)

		for i := 0; i < 100; i++ {
			bus.Emit(context.Background(), events.Event{Type: events.EventRecordDecoded, Payload: i})
		}

		Eventually(a.received).Should(HaveLen(100))
		for i, e := range a.received() {
			Expect(e.Payload).To(Equal(i))
		}
	})

	It("drops events for a handler that falls behind", func() {
		small := events.NewEventBus(zerolog.Nop(), events.WithHandlerQueue(1))
		release := make(chan struct{})
		fast := &sink{}
		small.Subscribe(events.EventRecordDecoded, "slow", func(context.Context, events.Event) error {
			<-release
			return nil
		})
		small.Subscribe(events.EventRecordDecoded, "fast", fast.handle)

		for i := 0; i < 3; i++ {
			small.Emit(context.Background(), events.Event{Type: events.EventRecordDecoded, Payload: i})
			Eventually(fast.received).Should(HaveLen(i + 1))
		}

		Expect(small.Dropped()).To(BeNumerically(">=", 1))
		close(release)
		small.Stop()
	})

	It("ignores events after Stop", func() {
		a := &sink{}
		bus.Subscribe(events.EventShutdown, "a", a.handle)

		bus.Stop()
		bus.Stop()
		Expect(bus.StopCh()).To(BeClosed())

		bus.Emit(context.Background(), events.Event{Type: events.EventShutdown})
		Consistently(a.received, 50*time.Millisecond).Should(BeEmpty())
	})
})

var _ = Describe("Forwarder", func() {
	var (
		bus *events.EventBus
		fw  *events.Forwarder
		at  time.Time
		got *sink
	)

	BeforeEach(func() {
		bus = events.NewEventBus(zerolog.Nop())
		at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		fw = events.NewForwarder(bus, func() time.Time { return at })
		got = &sink{}
		for _, t := range []events.EventType{events.EventRecordDecoded, events.EventMirrorChanged, events.EventCorrelationTimedOut} {
			bus.Subscribe(t, "sink", got.handle)
		}
	})

	AfterEach(func() {
		bus.Stop()
	})

	It("emits decoded records with their opcode name", func() {
		fw.RecordDecoded("bank", protocol.SmsgShowBank, protocol.BankWindow{Banker: 7})

		Eventually(got.received).Should(HaveLen(1))
		e := got.received()[0]
		Expect(e.Type).To(Equal(events.EventRecordDecoded))
		Expect(e.Source).To(Equal("bank"))
		Expect(e.Payload).To(Equal(events.RecordPayload{
			Subsystem: "bank",
			Opcode:    "SMSG_SHOW_BANK",
			Record:    protocol.BankWindow{Banker: 7},
			At:        at,
		}))
	})

	It("emits mirror changes and correlation timeouts", func() {
		fw.MirrorChanged("bank", map[string]bool{"open": true})
		fw.CorrelationTimedOut("bank.buy slot", time.Second)

		Eventually(got.received).Should(HaveLen(2))
		var types []events.EventType
		for _, e := range got.received() {
			types = append(types, e.Type)
		}
		Expect(types).To(ConsistOf(events.EventMirrorChanged, events.EventCorrelationTimedOut))
	})
})

var _ = Describe("ConnectionState", func() {
	It("marshals as its name", func() {
		b, err := json.Marshal(events.ConnectionConnected)
		Expect(err).To(Succeed())
		Expect(string(b)).To(Equal(`"connected"`))
		Expect(events.ConnectionState(42).String()).To(Equal("disconnected"))
	})
})
