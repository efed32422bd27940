// Package router fans inbound messages out to per-opcode subscribers.
//
// The router attaches to the connection once per opcode, the first time
// anything subscribes to it, and delivers every message of that opcode to
// all current subscribers in arrival order. Subscribers that attach late
// only see later messages. Opcodes the connection does not support give
// subscriptions that never fire.
package router

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/protocol"
)

// Connection is the session collaborator the router sits on.
type Connection interface {
	// Listen returns the delivery channel for op. The channel is closed
	// when the connection shuts down for good. ok is false when the
	// connection cannot deliver op at all.
	Listen(op protocol.Opcode) (ch <-chan protocol.Message, ok bool)

	// Send hands payload to the transport. It returns once the bytes were
	// accepted, which implies nothing about the server's reaction.
	Send(ctx context.Context, op protocol.Opcode, payload []byte) error
}

// HandlerFunc receives one inbound message. It runs on the opcode's
// delivery goroutine and must not block.
type HandlerFunc func(msg protocol.Message)

// Router multiplexes one Connection.
type Router struct {
	conn    Connection
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	streams map[protocol.Opcode]*stream

	hooksMu sync.RWMutex
	hooks   []lostHook
	hookSeq uint64
}

type lostHook struct {
	id   uint64
	name string
	fn   func()
}

// New creates a Router over conn. m may be nil.
func New(conn Connection, logger zerolog.Logger, m *metrics.Metrics) *Router {
	return &Router{
		conn:    conn,
		log:     logger.With().Str("component", "router").Logger(),
		metrics: m,
		streams: make(map[protocol.Opcode]*stream),
	}
}

// Subscribe registers handler for op. The name shows up in logs only.
// The returned Subscription must be closed when no longer needed; the
// handler must not close its own subscription.
func (r *Router) Subscribe(op protocol.Opcode, name string, handler HandlerFunc) *Subscription {
	st := r.attach(op)
	sub := &Subscription{name: name, handler: handler, stream: st, closed: make(chan struct{})}
	st.add(sub)

	r.log.Trace().
		Str("opcode", op.String()).
		Str("subscriber", name).
		Bool("supported", st.supported).
		Msg("subscribed")
	return sub
}

// Stream is the channel form of Subscribe. The channel holds up to
// buffer messages; a message arriving at a full channel is dropped and
// counted. The channel is closed by cancel or when the connection ends
// the opcode's stream.
func (r *Router) Stream(op protocol.Opcode, buffer int) (<-chan protocol.Message, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan protocol.Message, buffer)
	sub := r.Subscribe(op, "stream", func(msg protocol.Message) {
		select {
		case ch <- msg:
		default:
			r.metrics.StreamOverflow(op.String())
			r.log.Debug().Str("opcode", op.String()).Msg("stream buffer full, message dropped")
		}
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sub.Close()
			close(ch)
		})
	}
	go func() {
		select {
		case <-sub.Done():
			cancel()
		case <-sub.closed:
		}
	}()
	return ch, cancel
}

// Send forwards to the connection and counts the outcome.
func (r *Router) Send(ctx context.Context, op protocol.Opcode, payload []byte) error {
	err := r.conn.Send(ctx, op, payload)
	r.metrics.Send(op.String(), err)
	if err != nil {
		r.log.Warn().Err(err).Str("opcode", op.String()).Msg("send failed")
		return err
	}
	r.log.Trace().Str("opcode", op.String()).Int("size", len(payload)).Msg("sent")
	return nil
}

// OnConnectionLost registers fn to run whenever the transport reports
// that the session dropped. The returned func detaches the hook.
func (r *Router) OnConnectionLost(name string, fn func()) func() {
	r.hooksMu.Lock()
	r.hookSeq++
	id := r.hookSeq
	r.hooks = append(r.hooks, lostHook{id: id, name: name, fn: fn})
	r.hooksMu.Unlock()

	return func() {
		r.hooksMu.Lock()
		defer r.hooksMu.Unlock()
		for i, h := range r.hooks {
			if h.id == id {
				r.hooks = append(r.hooks[:i:i], r.hooks[i+1:]...)
				return
			}
		}
	}
}

// NotifyConnectionLost runs every connection-loss hook in registration
// order. It is not an opcode and never reaches Subscribe handlers.
func (r *Router) NotifyConnectionLost() {
	r.hooksMu.RLock()
	hooks := make([]lostHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.hooksMu.RUnlock()

	r.log.Info().Int("hooks", len(hooks)).Msg("connection lost, resetting subscribers")
	for _, h := range hooks {
		r.runHook(h)
	}
}

func (r *Router) runHook(h lostHook) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("hook", h.name).
				Interface("panic", rec).
				Msg("connection lost hook panicked")
		}
	}()
	h.fn()
}

// SubscriberCount returns the number of open subscriptions for op.
func (r *Router) SubscriberCount(op protocol.Opcode) int {
	r.mu.Lock()
	st, ok := r.streams[op]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return st.count()
}

// attach returns the stream for op, listening on the connection the
// first time op is seen.
func (r *Router) attach(op protocol.Opcode) *stream {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.streams[op]; ok {
		return st
	}

	st := &stream{op: op, done: make(chan struct{})}
	ch, ok := r.conn.Listen(op)
	st.supported = ok && ch != nil
	r.streams[op] = st

	if st.supported {
		go r.pump(st, ch)
		r.log.Debug().Str("opcode", op.String()).Msg("attached to connection")
	} else {
		r.log.Debug().Str("opcode", op.String()).Msg("opcode not supported by connection")
	}
	return st
}

func (r *Router) pump(st *stream, ch <-chan protocol.Message) {
	defer close(st.done)
	for msg := range ch {
		subs := st.snapshot()
		for _, sub := range subs {
			r.deliver(sub, msg)
		}
		if len(subs) > 0 {
			r.metrics.MessageDispatched(st.op.String())
		}
	}
	r.log.Debug().Str("opcode", st.op.String()).Msg("connection ended stream")
}

func (r *Router) deliver(sub *Subscription, msg protocol.Message) {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if sub.isClosed {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("opcode", msg.Opcode.String()).
				Str("subscriber", sub.name).
				Interface("panic", rec).
				Msg("subscriber panicked")
		}
	}()
	sub.handler(msg)
}

// stream is the per-opcode subscriber list. The list is copied on write
// so the pump can iterate a snapshot without holding the lock.
type stream struct {
	op        protocol.Opcode
	supported bool
	done      chan struct{}

	mu   sync.Mutex
	subs []*Subscription
}

func (s *stream) add(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*Subscription, len(s.subs), len(s.subs)+1)
	copy(next, s.subs)
	s.subs = append(next, sub)
}

func (s *stream) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*Subscription, 0, len(s.subs))
	for _, x := range s.subs {
		if x != sub {
			next = append(next, x)
		}
	}
	s.subs = next
}

func (s *stream) snapshot() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs
}

func (s *stream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
