package network_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/network"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
)

// fakeRealm accepts sessions and hands them to the test.
type fakeRealm struct {
	ln       net.Listener
	sessions chan net.Conn
}

func newFakeRealm() *fakeRealm {
	ln, err := network.Listen(context.Background(), "127.0.0.1:0")
	Expect(err).To(Succeed())
	fr := &fakeRealm{ln: ln, sessions: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fr.sessions <- conn
		}
	}()
	return fr
}

func (fr *fakeRealm) next() net.Conn {
	var conn net.Conn
	Eventually(fr.sessions, 2*time.Second).Should(Receive(&conn))
	return conn
}

type tapped struct {
	mu   sync.Mutex
	dirs []string
}

func (t *tapped) Capture(direction string, _ protocol.Message) {
	t.mu.Lock()
	t.dirs = append(t.dirs, direction)
	t.mu.Unlock()
}

func (t *tapped) directions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.dirs...)
}

var _ = Describe("Client", func() {
	var (
		realm  *fakeRealm
		client *network.Client
		bus    *events.EventBus
		cancel context.CancelFunc
		done   chan struct{}
	)

	BeforeEach(func() {
		realm = newFakeRealm()
		bus = events.NewEventBus(zerolog.Nop())
		client = network.NewClient(network.ClientConfig{
			Address:        realm.ln.Addr().String(),
			ReconnectDelay: 20 * time.Millisecond,
			ReadTimeout:    50 * time.Millisecond,
		}, bus, nil, zerolog.Nop())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
		go func() {
			defer close(done)
			client.ManageConnection(ctx)
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(done, 2*time.Second).Should(BeClosed())
		Expect(client.Close()).To(Succeed())
		realm.ln.Close()
		bus.Stop()
	})

	It("frames traffic in both directions", func() {
		tap := &tapped{}
		client.SetTap(tap)
		pongs, ok := client.Listen(protocol.SmsgPong)
		Expect(ok).To(BeTrue())

		server := realm.next()
		defer server.Close()
		Eventually(client.IsConnected).Should(BeTrue())

		Expect(protocol.WriteServerMessage(server, protocol.SmsgPong, []byte{1, 0, 0, 0})).To(Succeed())
		var msg protocol.Message
		Eventually(pongs).Should(Receive(&msg))
		Expect(msg.Payload).To(Equal([]byte{1, 0, 0, 0}))

		Expect(client.Send(context.Background(), protocol.CmsgPing, protocol.BuildPing(2, 0))).To(Succeed())
		server.SetReadDeadline(time.Now().Add(time.Second))
		got, err := protocol.ReadClientMessage(server)
		Expect(err).To(Succeed())
		Expect(got.Opcode).To(Equal(protocol.CmsgPing))
		Expect(got.Payload).To(Equal(protocol.BuildPing(2, 0)))

		Expect(tap.directions()).To(ConsistOf(network.DirectionInbound, network.DirectionOutbound))
	})

	It("reports the loss and reconnects", func() {
		lost := make(chan struct{}, 4)
		client.SetLossHandler(func() { lost <- struct{}{} })
		established := make(chan events.Event, 4)
		bus.Subscribe(events.EventConnectionEstablished, "test", func(_ context.Context, e events.Event) error {
			established <- e
			return nil
		})

		first := realm.next()
		Eventually(client.IsConnected).Should(BeTrue())
		first.Close()

		Eventually(lost).Should(Receive())
		err := client.Send(context.Background(), protocol.CmsgPing, nil)
		if err != nil {
			Expect(errors.Is(err, router.ErrNotConnected)).To(BeTrue())
		}

		second := realm.next()
		defer second.Close()
		Eventually(client.IsConnected).Should(BeTrue())
		Eventually(established).Should(Receive())
	})

	It("abandons a blocked send when its context ends and drops the session", func() {
		lost := make(chan struct{}, 4)
		client.SetLossHandler(func() { lost <- struct{}{} })

		// The realm never reads, so the socket buffers fill and a write blocks.
		server := realm.next()
		defer server.Close()
		Eventually(client.IsConnected).Should(BeTrue())

		ctx, stop := context.WithCancel(context.Background())
		defer stop()
		payload := make([]byte, protocol.MaxPacketSize-4)
		errs := make(chan error, 1)
		go func() {
			for {
				if err := client.Send(ctx, protocol.CmsgPing, payload); err != nil {
					errs <- err
					return
				}
			}
		}()

		time.Sleep(100 * time.Millisecond)
		started := time.Now()
		stop()

		var err error
		Eventually(errs, 2*time.Second).Should(Receive(&err))
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(time.Since(started)).To(BeNumerically("<", 2*time.Second))
		Eventually(lost).Should(Receive())
	})

	It("keeps listening queues across sessions until closed", func() {
		ch, _ := client.Listen(protocol.SmsgPong)
		realm.next().Close()

		second := realm.next()
		defer second.Close()
		Eventually(client.IsConnected).Should(BeTrue())
		Expect(protocol.WriteServerMessage(second, protocol.SmsgPong, []byte{3, 0, 0, 0})).To(Succeed())
		Eventually(ch).Should(Receive())

		Expect(client.Close()).To(Succeed())
		Eventually(ch).Should(BeClosed())
		_, ok := client.Listen(protocol.SmsgPong)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Client without a session", func() {
	It("refuses sends", func() {
		c := network.NewClient(network.ClientConfig{Address: "127.0.0.1:1"}, nil, nil, zerolog.Nop())
		defer c.Close()
		err := c.Send(context.Background(), protocol.CmsgPing, nil)
		Expect(errors.Is(err, router.ErrNotConnected)).To(BeTrue())
	})
})
