package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
)

// DefaultLoopbackBuffer is the per-opcode queue length of a Loopback.
const DefaultLoopbackBuffer = 256

// Loopback is an in-memory connection. Inbound messages are injected by
// the caller, outbound messages are recorded. Tests use it in place of a
// realm server and replay uses it to push stored captures through the
// facades.
type Loopback struct {
	mu          sync.RWMutex
	chans       map[protocol.Opcode]chan protocol.Message
	unsupported map[protocol.Opcode]bool
	buffer      int
	down        bool
	closed      bool
	onLoss      func()

	sentMu sync.Mutex
	sent   []protocol.Message
	onSend func(protocol.Message)
}

// LoopbackOption configures a Loopback.
type LoopbackOption func(*Loopback)

// WithUnsupported makes Listen refuse ops.
func WithUnsupported(ops ...protocol.Opcode) LoopbackOption {
	return func(l *Loopback) {
		for _, op := range ops {
			l.unsupported[op] = true
		}
	}
}

// WithSendHook calls fn after every accepted Send. fn may Inject a reply.
func WithSendHook(fn func(protocol.Message)) LoopbackOption {
	return func(l *Loopback) { l.onSend = fn }
}

// WithLoopbackBuffer sets the per-opcode queue length.
func WithLoopbackBuffer(n int) LoopbackOption {
	return func(l *Loopback) {
		if n > 0 {
			l.buffer = n
		}
	}
}

// NewLoopback creates a connected Loopback.
func NewLoopback(opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		chans:       make(map[protocol.Opcode]chan protocol.Message),
		unsupported: make(map[protocol.Opcode]bool),
		buffer:      DefaultLoopbackBuffer,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Listen implements router.Connection.
func (l *Loopback) Listen(op protocol.Opcode) (<-chan protocol.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.unsupported[op] {
		return nil, false
	}
	return l.channel(op), true
}

func (l *Loopback) channel(op protocol.Opcode) chan protocol.Message {
	ch, ok := l.chans[op]
	if !ok {
		ch = make(chan protocol.Message, l.buffer)
		l.chans[op] = ch
	}
	return ch
}

// Inject delivers an inbound message as if the server had sent it. The
// payload is copied. A message for an opcode nobody listens to is
// discarded. It reports false when op is unsupported or the loopback is
// closed or down.
func (l *Loopback) Inject(op protocol.Opcode, payload []byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || l.down || l.unsupported[op] {
		return false
	}
	ch, ok := l.chans[op]
	if !ok {
		return true
	}
	ch <- protocol.Message{Opcode: op, Payload: append([]byte(nil), payload...)}
	return true
}

// Send implements router.Connection.
func (l *Loopback) Send(ctx context.Context, op protocol.Opcode, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	down := l.down || l.closed
	l.mu.RUnlock()
	if down {
		return fmt.Errorf("loopback: %w", router.ErrNotConnected)
	}

	msg := protocol.Message{Opcode: op, Payload: append([]byte(nil), payload...)}
	l.sentMu.Lock()
	l.sent = append(l.sent, msg)
	hook := l.onSend
	l.sentMu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return nil
}

// SetSendHook replaces the send hook.
func (l *Loopback) SetSendHook(fn func(protocol.Message)) {
	l.sentMu.Lock()
	l.onSend = fn
	l.sentMu.Unlock()
}

// Sent returns every message accepted by Send so far.
func (l *Loopback) Sent() []protocol.Message {
	l.sentMu.Lock()
	defer l.sentMu.Unlock()
	out := make([]protocol.Message, len(l.sent))
	copy(out, l.sent)
	return out
}

// SentOf returns the accepted messages with opcode op.
func (l *Loopback) SentOf(op protocol.Opcode) []protocol.Message {
	var out []protocol.Message
	for _, m := range l.Sent() {
		if m.Opcode == op {
			out = append(out, m)
		}
	}
	return out
}

// Supported reports whether Listen would accept op.
func (l *Loopback) Supported(op protocol.Opcode) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.unsupported[op]
}

// SetLossHandler registers the function called by Drop.
func (l *Loopback) SetLossHandler(fn func()) {
	l.mu.Lock()
	l.onLoss = fn
	l.mu.Unlock()
}

// Drop simulates a lost session: sends fail with router.ErrNotConnected
// until Restore, and the loss handler runs.
func (l *Loopback) Drop() {
	l.mu.Lock()
	l.down = true
	fn := l.onLoss
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Restore brings a dropped loopback back up.
func (l *Loopback) Restore() {
	l.mu.Lock()
	l.down = false
	l.mu.Unlock()
}

// Connected reports whether sends are accepted.
func (l *Loopback) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.down && !l.closed
}

// Pending returns how many injected messages are still queued.
func (l *Loopback) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, ch := range l.chans {
		n += len(ch)
	}
	return n
}

// Close ends every opcode stream. It is safe to call more than once.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for op, ch := range l.chans {
		close(ch)
		delete(l.chans, op)
	}
	return nil
}
