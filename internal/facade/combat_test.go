package facade_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/facade"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

var _ = Describe("Targeting", func() {
	var rl *realm

	BeforeEach(func() { rl = newRealm() })
	AfterEach(func() { rl.close() })

	It("merges target halves that arrive separately", func() {
		t := rl.set.Targeting

		rl.loop.Inject(protocol.SmsgUpdateObject, targetUpdate(player, creature, protocol.UnitFieldTarget))
		Eventually(t.Target).Should(Equal(creature & 0xFFFFFFFF))

		rl.loop.Inject(protocol.SmsgUpdateObject, targetUpdate(player, creature, protocol.UnitFieldTargetHi))
		Eventually(t.Target).Should(Equal(creature))
		Expect(t.Version()).To(Equal(uint64(2)))
	})

	It("ignores updates to other objects and repeats of the same target", func() {
		t := rl.set.Targeting
		ch, cancel := t.Updates()
		defer cancel()

		rl.loop.Inject(protocol.SmsgUpdateObject, fullTarget(creature))
		rl.loop.Inject(protocol.SmsgUpdateObject, fullTarget(creature))
		rl.loop.Inject(protocol.SmsgUpdateObject, targetUpdate(creature, player, protocol.UnitFieldTarget))

		Eventually(ch).Should(Receive())
		Eventually(ch).Should(Receive())
		Eventually(ch).Should(Receive())
		Expect(t.Target()).To(Equal(creature))
		Expect(t.Version()).To(Equal(uint64(1)))
	})

	It("reads compressed updates", func() {
		rl.loop.Inject(protocol.SmsgCompressedUpdateObject, compressed(fullTarget(creature)))
		Eventually(rl.set.Targeting.Target).Should(Equal(creature))
	})

	It("keeps the player binding across a connection loss", func() {
		rl.loop.Inject(protocol.SmsgUpdateObject, fullTarget(creature))
		Eventually(rl.set.Targeting.Target).Should(Equal(creature))

		rl.loop.Drop()
		Expect(rl.set.Targeting.Snapshot()).To(Equal(facade.TargetingState{Player: player}))
	})
})

var _ = Describe("Combat", func() {
	var rl *realm

	BeforeEach(func() { rl = newRealm() })
	AfterEach(func() { rl.close() })

	It("swings once the server confirms the selection", func() {
		rl.reply(protocol.CmsgSetSelection, protocol.SmsgUpdateObject, func(req []byte) []byte {
			return fullTarget(requestGUID(req))
		})

		outcome, err := rl.set.Combat.Attack(context.Background(), creature)
		Expect(err).To(Succeed())
		Expect(outcome).To(Equal(correlate.OutcomeConfirmed))
		Expect(rl.sentOps()).To(Equal([]protocol.Opcode{protocol.CmsgSetSelection, protocol.CmsgAttackSwing}))
		Expect(rl.set.Targeting.Target()).To(Equal(creature))
	})

	It("accepts a selection confirmed by a compressed update", func() {
		rl.reply(protocol.CmsgSetSelection, protocol.SmsgCompressedUpdateObject, func(req []byte) []byte {
			return compressed(fullTarget(requestGUID(req)))
		})

		start := time.Now()
		outcome, err := rl.set.Combat.Attack(context.Background(), creature)
		Expect(err).To(Succeed())
		Expect(outcome).To(Equal(correlate.OutcomeConfirmed))
		Expect(time.Since(start)).To(BeNumerically("<", timeout))
		Expect(rl.sentOps()).To(Equal([]protocol.Opcode{protocol.CmsgSetSelection, protocol.CmsgAttackSwing}))
		Expect(rl.set.Combat.Pending()).To(BeZero())
	})

	It("still swings after the selection wait times out", func() {
		start := time.Now()
		outcome, err := rl.set.Combat.Attack(context.Background(), creature)

		Expect(err).To(Succeed())
		Expect(outcome).To(Equal(correlate.OutcomeTimedOut))
		Expect(time.Since(start)).To(BeNumerically(">=", timeout))
		Expect(rl.loop.SentOf(protocol.CmsgAttackSwing)).To(HaveLen(1))
		Expect(rl.set.Targeting.Target()).To(BeZero())
		Expect(rl.set.Combat.Pending()).To(BeZero())
	})

	It("does not swing when the selection cannot be sent", func() {
		rl.loop.Drop()
		_, err := rl.set.Combat.Attack(context.Background(), creature)
		Expect(errors.Is(err, subsystem.ErrNotConnected)).To(BeTrue())
		Expect(rl.loop.Sent()).To(BeEmpty())
	})

	It("tracks attacks started and stopped by the player only", func() {
		c := rl.set.Combat
		start := protocol.NewPacketBuilder().WriteGUID(player).WriteGUID(creature).Build()
		other := protocol.NewPacketBuilder().WriteGUID(creature).WriteGUID(player).Build()

		rl.loop.Inject(protocol.SmsgAttackStart, other)
		rl.loop.Inject(protocol.SmsgAttackStart, start)
		Eventually(c.IsAttacking).Should(BeTrue())
		Expect(c.Snapshot().Victim).To(Equal(creature))

		rl.loop.Inject(protocol.SmsgAttackSwingBadFacing, nil)
		Eventually(func() protocol.SwingError { return c.Snapshot().LastSwingError }).Should(Equal(protocol.SwingBadFacing))

		Expect(c.StopAttack(context.Background())).To(Succeed())
		stop := protocol.NewPacketBuilder().WritePackedGUID(player).WritePackedGUID(creature).WriteUint32(0).Build()
		rl.loop.Inject(protocol.SmsgAttackStop, stop)
		Eventually(c.IsAttacking).Should(BeFalse())
	})

	It("refuses to stop an attack that was never confirmed", func() {
		err := rl.set.Combat.StopAttack(context.Background())
		Expect(errors.Is(err, subsystem.ErrPrecondition)).To(BeTrue())
		Expect(rl.loop.Sent()).To(BeEmpty())
	})
})
