package correlate_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/network"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
)

func pong(seq uint32) []byte {
	return protocol.NewPacketBuilder().WriteUint32(seq).Build()
}

func expectPong(r *router.Router, seq uint32) *correlate.Expectation[protocol.Pong] {
	return correlate.Expect(context.Background(), r, protocol.SmsgPong, protocol.ParsePong, func(p protocol.Pong) bool {
		return p.Seq == seq
	})
}

var _ = Describe("correlate", func() {
	const timeout = 100 * time.Millisecond

	var (
		loop *network.Loopback
		r    *router.Router
		fl   correlate.Flow
	)

	BeforeEach(func() {
		loop = network.NewLoopback()
		r = router.New(loop, zerolog.Nop(), metrics.New())
		fl = correlate.Flow{Operation: "test", Timeout: timeout, Log: zerolog.Nop()}
	})

	AfterEach(func() {
		Expect(loop.Close()).To(Succeed())
	})

	Describe("Expectation", func() {
		It("confirms on the first matching record", func() {
			exp := expectPong(r, 7)
			defer exp.Release()

			loop.Inject(protocol.SmsgPong, pong(6))
			loop.Inject(protocol.SmsgPong, pong(7))

			rec, outcome, err := exp.Wait(context.Background(), time.Second)
			Expect(err).To(Succeed())
			Expect(outcome).To(Equal(correlate.OutcomeConfirmed))
			Expect(rec.Seq).To(Equal(uint32(7)))
		})

		It("ignores records that do not parse or do not match", func() {
			exp := expectPong(r, 7)
			defer exp.Release()

			loop.Inject(protocol.SmsgPong, []byte{1})
			loop.Inject(protocol.SmsgPong, pong(8))

			_, outcome, err := exp.Wait(context.Background(), timeout)
			Expect(err).To(Succeed())
			Expect(outcome).To(Equal(correlate.OutcomeTimedOut))
		})

		It("stops observing once released", func() {
			exp := expectPong(r, 1)
			Expect(r.SubscriberCount(protocol.SmsgPong)).To(Equal(1))

			hooks := 0
			exp.AfterRelease(func() { hooks++ })
			exp.Release()
			exp.Release()

			Expect(hooks).To(Equal(1))
			Expect(r.SubscriberCount(protocol.SmsgPong)).To(BeZero())

			exp.AfterRelease(func() { hooks++ })
			Expect(hooks).To(Equal(2))
		})

		It("observes every opcode it was extended to", func() {
			// Any opcode works here; the records only need to share a shape.
			alias := protocol.SmsgGossipComplete
			exp := expectPong(r, 7).Also(r, alias, protocol.ParsePong)
			Expect(r.SubscriberCount(alias)).To(Equal(1))

			loop.Inject(alias, pong(6))
			loop.Inject(alias, pong(7))
			rec, outcome, err := exp.Wait(context.Background(), time.Second)
			Expect(err).To(Succeed())
			Expect(outcome).To(Equal(correlate.OutcomeConfirmed))
			Expect(rec.Seq).To(Equal(uint32(7)))

			exp.Release()
			Expect(r.SubscriberCount(protocol.SmsgPong)).To(BeZero())
			Expect(r.SubscriberCount(alias)).To(BeZero())

			exp.Also(r, alias, protocol.ParsePong)
			Expect(r.SubscriberCount(alias)).To(BeZero())
		})

		It("ends the wait when its owner goes away", func() {
			life, cancel := context.WithCancel(context.Background())
			exp := correlate.Expect(life, r, protocol.SmsgPong, protocol.ParsePong, nil)
			defer exp.Release()

			cancel()
			_, outcome, err := exp.Wait(context.Background(), time.Second)
			Expect(outcome).To(Equal(correlate.OutcomeCanceled))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	Describe("Run()", func() {
		It("catches a confirmation that arrives while the request is still being sent", func() {
			exp := expectPong(r, 3)
			ran := false

			outcome, err := correlate.Run(context.Background(), fl, exp,
				func(context.Context) error {
					loop.Inject(protocol.SmsgPong, pong(3))
					return nil
				},
				func(context.Context) error {
					ran = true
					return nil
				})
			Expect(err).To(Succeed())
			Expect(outcome).To(Equal(correlate.OutcomeConfirmed))
			Expect(ran).To(BeTrue())
		})

		It("runs the dependent action after the deadline when nothing confirms", func() {
			exp := expectPong(r, 3)
			var ranAt time.Time
			var timedOut string
			fl.OnTimeout = func(op string, _ time.Duration) { timedOut = op }

			start := time.Now()
			outcome, err := correlate.Run(context.Background(), fl, exp,
				func(context.Context) error { return nil },
				func(context.Context) error {
					ranAt = time.Now()
					return nil
				})

			Expect(err).To(Succeed())
			Expect(outcome).To(Equal(correlate.OutcomeTimedOut))
			Expect(ranAt.Sub(start)).To(BeNumerically(">=", timeout))
			Expect(ranAt.Sub(start)).To(BeNumerically("<", timeout+500*time.Millisecond))
			Expect(timedOut).To(Equal("test"))
			Expect(r.SubscriberCount(protocol.SmsgPong)).To(BeZero())
		})

		It("skips the dependent action when the request cannot be sent", func() {
			exp := expectPong(r, 3)
			sendErr := errors.New("wire cut")
			ran := false

			_, err := correlate.Run(context.Background(), fl, exp,
				func(context.Context) error { return sendErr },
				func(context.Context) error {
					ran = true
					return nil
				})
			Expect(err).To(MatchError(sendErr))
			Expect(ran).To(BeFalse())
			Expect(r.SubscriberCount(protocol.SmsgPong)).To(BeZero())
		})

		It("returns the context error when cancelled while waiting", func() {
			exp := expectPong(r, 3)
			ctx, cancel := context.WithCancel(context.Background())
			ran := false

			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
			outcome, err := correlate.Run(ctx, fl, exp,
				func(context.Context) error { return nil },
				func(context.Context) error {
					ran = true
					return nil
				})
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(outcome).To(Equal(correlate.OutcomeCanceled))
			Expect(ran).To(BeFalse())
		})
	})
})
