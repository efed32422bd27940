package subsystem_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/network"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

const testOp = protocol.SmsgShowBank

type window struct {
	Open  bool
	Label string
}

func parseLabel(b []byte) (*string, error) {
	if len(b) == 0 {
		return nil, errors.New("empty")
	}
	s := string(b)
	return &s, nil
}

func openWindow(s *window, label *string) {
	s.Open = true
	s.Label = *label
}

// flakyConn fails sends with a fixed error.
type flakyConn struct {
	*network.Loopback
	err error
}

func (c *flakyConn) Send(ctx context.Context, op protocol.Opcode, payload []byte) error {
	return c.err
}

type observed struct {
	mu       sync.Mutex
	records  []any
	mirrors  []any
	timeouts []string
}

func (o *observed) RecordDecoded(_ string, _ protocol.Opcode, record any) {
	o.mu.Lock()
	o.records = append(o.records, record)
	o.mu.Unlock()
}

func (o *observed) MirrorChanged(_ string, snapshot any) {
	o.mu.Lock()
	o.mirrors = append(o.mirrors, snapshot)
	o.mu.Unlock()
}

func (o *observed) CorrelationTimedOut(operation string, _ time.Duration) {
	o.mu.Lock()
	o.timeouts = append(o.timeouts, operation)
	o.mu.Unlock()
}

func (o *observed) counts() (records, mirrors int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records), len(o.mirrors)
}

func (o *observed) mirrorCount() int {
	_, n := o.counts()
	return n
}

func (o *observed) recordCount() int {
	n, _ := o.counts()
	return n
}

var _ = Describe("Facade", func() {
	var (
		loop *network.Loopback
		r    *router.Router
		obs  *observed
		f    *subsystem.Facade[window]
	)

	BeforeEach(func() {
		loop = network.NewLoopback()
		r = router.New(loop, zerolog.Nop(), metrics.New())
		obs = &observed{}
		f = subsystem.New("bank", r, window{}, subsystem.Options{
			Logger:             zerolog.Nop(),
			Observer:           obs,
			CorrelationTimeout: 50 * time.Millisecond,
		})
	})

	AfterEach(func() {
		Expect(f.Dispose()).To(Succeed())
		Expect(loop.Close()).To(Succeed())
	})

	Describe("Handle()", func() {
		It("applies each record before publishing it", func() {
			feed := subsystem.Handle(f, testOp, parseLabel, openWindow)
			ch, cancel := feed.Subscribe()
			defer cancel()

			loop.Inject(testOp, []byte("vault"))

			var got string
			Eventually(ch).Should(Receive(&got))
			Expect(got).To(Equal("vault"))
			Expect(f.Snapshot()).To(Equal(window{Open: true, Label: "vault"}))
			Expect(f.Version()).To(Equal(uint64(1)))
			Eventually(obs.recordCount).Should(Equal(1))
			Expect(obs.mirrorCount()).To(Equal(1))
		})

		It("ignores messages that do not decode", func() {
			feed := subsystem.Handle(f, testOp, parseLabel, openWindow)
			ch, cancel := feed.Subscribe()
			defer cancel()

			loop.Inject(testOp, nil)

			Consistently(ch, 50*time.Millisecond).ShouldNot(Receive())
			Expect(f.Snapshot()).To(Equal(window{}))
			Expect(f.Version()).To(BeZero())
			Expect(obs.recordCount()).To(BeZero())
		})

		It("publishes records that have no mirror effect", func() {
			feed := subsystem.Handle[window, string](f, testOp, parseLabel, nil)
			ch, cancel := feed.Subscribe()
			defer cancel()

			loop.Inject(testOp, []byte("x"))
			Eventually(ch).Should(Receive())
			Expect(f.Version()).To(BeZero())
			Expect(obs.mirrorCount()).To(BeZero())
		})
	})

	Describe("HandleChanges()", func() {
		It("notifies observers only when the mirror changed", func() {
			subsystem.HandleChanges(f, testOp, parseLabel, func(s *window, label *string) bool {
				if s.Label == *label {
					return false
				}
				s.Label = *label
				return true
			})

			loop.Inject(testOp, []byte("a"))
			loop.Inject(testOp, []byte("a"))
			loop.Inject(testOp, []byte("b"))

			Eventually(obs.recordCount).Should(Equal(3))
			Expect(obs.mirrorCount()).To(Equal(2))
			Expect(f.Version()).To(Equal(uint64(2)))
		})
	})

	Describe("Send()", func() {
		It("leaves the mirror at rest", func() {
			subsystem.Handle(f, testOp, parseLabel, openWindow)
			Expect(f.Send(context.Background(), protocol.CmsgBankerActivate, []byte{1})).To(Succeed())
			Expect(loop.SentOf(protocol.CmsgBankerActivate)).To(HaveLen(1))
			Expect(f.Snapshot()).To(Equal(window{}))
			Expect(f.Version()).To(BeZero())
		})

		It("reports a dropped session as ErrNotConnected", func() {
			loop.Drop()
			err := f.Send(context.Background(), protocol.CmsgBankerActivate, nil)
			Expect(errors.Is(err, subsystem.ErrNotConnected)).To(BeTrue())

			var te *subsystem.TransportError
			Expect(errors.As(err, &te)).To(BeFalse())
		})

		It("passes context errors through", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := f.Send(ctx, protocol.CmsgBankerActivate, nil)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		It("wraps other failures in a TransportError", func() {
			cut := errors.New("broken pipe")
			fr := router.New(&flakyConn{Loopback: loop, err: cut}, zerolog.Nop(), nil)
			ff := subsystem.New("bank", fr, window{}, subsystem.Options{Logger: zerolog.Nop()})
			defer ff.Dispose()

			err := ff.Send(context.Background(), protocol.CmsgBankerActivate, nil)
			var te *subsystem.TransportError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.Subsystem).To(Equal("bank"))
			Expect(te.Opcode).To(Equal(protocol.CmsgBankerActivate))
			Expect(errors.Is(err, cut)).To(BeTrue())
		})
	})

	Describe("Require()", func() {
		It("returns a PreconditionError when the condition fails", func() {
			Expect(f.Require(true, "buy slot", "bank is not open")).To(Succeed())

			err := f.Require(false, "buy slot", "bank is not open")
			Expect(errors.Is(err, subsystem.ErrPrecondition)).To(BeTrue())
			Expect(err).To(MatchError("bank: cannot buy slot: bank is not open"))
		})
	})

	Describe("Flow()", func() {
		It("prefixes the operation and reports timeouts to the observer", func() {
			fl := f.Flow("buy slot")
			Expect(fl.Operation).To(Equal("bank.buy slot"))
			Expect(fl.Timeout).To(Equal(50 * time.Millisecond))

			exp := subsystem.Expect(f, testOp, parseLabel, nil)
			defer exp.Release()
			_, outcome, err := correlate.Await(context.Background(), fl, exp)
			Expect(err).To(Succeed())
			Expect(outcome).To(Equal(correlate.OutcomeTimedOut))

			obs.mu.Lock()
			defer obs.mu.Unlock()
			Expect(obs.timeouts).To(Equal([]string{"bank.buy slot"}))
		})
	})

	Describe("Expect()", func() {
		It("tracks the expectation until it is released", func() {
			exp := subsystem.Expect(f, testOp, parseLabel, nil)
			Expect(f.Pending()).To(Equal(1))
			exp.Release()
			Expect(f.Pending()).To(BeZero())
		})
	})

	Describe("connection loss", func() {
		It("resets the mirror and runs the facade's hooks", func() {
			subsystem.Handle(f, testOp, parseLabel, openWindow)
			flushed := false
			f.OnConnectionLost(func() { flushed = true })

			loop.Inject(testOp, []byte("vault"))
			Eventually(f.Snapshot).Should(Equal(window{Open: true, Label: "vault"}))

			r.NotifyConnectionLost()
			Expect(f.Snapshot()).To(Equal(window{}))
			Expect(flushed).To(BeTrue())
		})
	})

	Describe("Confirm()", func() {
		It("updates the mirror and notifies observers", func() {
			f.Confirm(func(s *window) { s.Label = "measured" })
			Expect(f.Snapshot().Label).To(Equal("measured"))
			Expect(obs.mirrorCount()).To(Equal(1))
		})
	})

	Describe("Dispose()", func() {
		It("stops every effect of later messages", func() {
			feed := subsystem.Handle(f, testOp, parseLabel, openWindow)
			ch, _ := feed.Subscribe()

			Expect(f.Dispose()).To(Succeed())
			Expect(f.Disposed()).To(BeTrue())
			Eventually(ch).Should(BeClosed())

			loop.Inject(testOp, []byte("late"))
			Consistently(f.Version, 50*time.Millisecond).Should(BeZero())
			Expect(f.Snapshot()).To(Equal(window{}))
			Expect(r.SubscriberCount(testOp)).To(BeZero())
		})

		It("ends outstanding waits", func() {
			exp := subsystem.Expect(f, testOp, parseLabel, nil)
			done := make(chan correlate.Outcome, 1)
			go func() {
				_, outcome, _ := exp.Wait(context.Background(), time.Minute)
				done <- outcome
			}()

			Expect(f.Dispose()).To(Succeed())
			Eventually(done).Should(Receive(Equal(correlate.OutcomeCanceled)))
			Expect(f.Pending()).To(BeZero())
		})

		It("rejects sends afterwards", func() {
			Expect(f.Dispose()).To(Succeed())
			err := f.Send(context.Background(), protocol.CmsgBankerActivate, nil)
			Expect(errors.Is(err, subsystem.ErrDisposed)).To(BeTrue())
			Expect(loop.Sent()).To(BeEmpty())
		})

		It("is idempotent", func() {
			Expect(f.Dispose()).To(Succeed())
			Expect(f.Dispose()).To(Succeed())
		})

		It("hands out closed feeds once disposed", func() {
			Expect(f.Dispose()).To(Succeed())
			feed := subsystem.Handle(f, testOp, parseLabel, openWindow)
			ch, _ := feed.Subscribe()
			Expect(ch).To(BeClosed())
			Expect(r.SubscriberCount(testOp)).To(BeZero())
		})

		It("does not reset a frozen mirror on connection loss", func() {
			subsystem.Handle(f, testOp, parseLabel, openWindow)
			loop.Inject(testOp, []byte("vault"))
			Eventually(f.Version).Should(Equal(uint64(1)))

			Expect(f.Dispose()).To(Succeed())
			r.NotifyConnectionLost()
			Expect(f.Snapshot().Open).To(BeTrue())
		})
	})
})

var _ = Describe("Feed", func() {
	var (
		loop *network.Loopback
		r    *router.Router
		f    *subsystem.Facade[window]
	)

	BeforeEach(func() {
		loop = network.NewLoopback()
		r = router.New(loop, zerolog.Nop(), nil)
		f = subsystem.New("bank", r, window{}, subsystem.Options{Logger: zerolog.Nop(), FeedBuffer: 1})
	})

	AfterEach(func() {
		f.Dispose()
		loop.Close()
	})

	It("drops records for a subscriber whose buffer is full", func() {
		feed := subsystem.Handle(f, testOp, parseLabel, openWindow)
		slow, cancelSlow := feed.Subscribe()
		defer cancelSlow()

		for _, l := range []string{"a", "b", "c"} {
			loop.Inject(testOp, []byte(l))
		}
		Eventually(f.Version).Should(Equal(uint64(3)))

		Expect(slow).To(HaveLen(1))
		Expect(slow).To(Receive(Equal("a")))
	})

	It("closes a subscriber's channel when it detaches", func() {
		feed := subsystem.Handle(f, testOp, parseLabel, openWindow)
		ch, cancel := feed.Subscribe()
		Expect(feed.Subscribers()).To(Equal(1))

		cancel()
		cancel()
		Expect(ch).To(BeClosed())
		Expect(feed.Subscribers()).To(BeZero())
	})
})
