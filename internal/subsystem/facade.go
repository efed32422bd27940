// Package subsystem is the generic shape every domain facade is built
// from: a mirror of confirmed server state, the opcode handlers that feed
// it, the record feeds callers observe, and the send path.
package subsystem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/mirror"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
)

// DefaultFeedBuffer is the per-subscriber record buffer.
const DefaultFeedBuffer = 64

// Observer is told about every record a facade decodes and every mirror
// change. The composition root uses it to forward state to the event
// bus; handlers call it synchronously, so it must not block.
type Observer interface {
	RecordDecoded(subsystem string, op protocol.Opcode, record any)
	MirrorChanged(subsystem string, snapshot any)
}

// TimeoutObserver is implemented by observers that also want to hear
// about correlated waits that ran out.
type TimeoutObserver interface {
	CorrelationTimedOut(operation string, waited time.Duration)
}

// Options are the dependencies shared by every facade.
type Options struct {
	Logger             zerolog.Logger
	Metrics            *metrics.Metrics
	Observer           Observer
	Clock              protocol.Clock
	FeedBuffer         int
	CorrelationTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = protocol.SystemClock
	}
	if o.FeedBuffer <= 0 {
		o.FeedBuffer = DefaultFeedBuffer
	}
	if o.CorrelationTimeout <= 0 {
		o.CorrelationTimeout = correlate.DefaultTimeout
	}
	return o
}

type closer interface {
	close()
}

type releaser interface {
	Release()
}

// Facade is the generic part of a domain facade with mirror state S.
type Facade[S any] struct {
	name   string
	router *router.Router
	mirror *mirror.Mirror[S]
	rest   S
	opts   Options
	log    zerolog.Logger

	life   context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	subs       []*router.Subscription
	feeds      []closer
	pending    map[uint64]releaser
	pendingSeq uint64
	detachLoss func()
	onLoss     []func()
	disposed   bool
}

// New creates a facade named name whose mirror starts (and resets) at
// rest. Connection loss resets the mirror.
func New[S any](name string, r *router.Router, rest S, opts Options) *Facade[S] {
	opts = opts.withDefaults()
	life, cancel := context.WithCancel(context.Background())
	f := &Facade[S]{
		name:    name,
		router:  r,
		mirror:  mirror.New(rest),
		rest:    rest,
		opts:    opts,
		log:     opts.Logger.With().Str("subsystem", name).Logger(),
		life:    life,
		cancel:  cancel,
		pending: make(map[uint64]releaser),
	}
	f.detachLoss = r.OnConnectionLost(name, f.connectionLost)
	return f
}

// Name returns the subsystem name.
func (f *Facade[S]) Name() string { return f.name }

// Logger returns the facade's logger.
func (f *Facade[S]) Logger() zerolog.Logger { return f.log }

// Now returns the facade clock's current time.
func (f *Facade[S]) Now() time.Time { return f.opts.Clock() }

// Snapshot returns the current mirror state.
func (f *Facade[S]) Snapshot() S { return f.mirror.Snapshot() }

// Version counts mirror updates.
func (f *Facade[S]) Version() uint64 { return f.mirror.Version() }

// OnConnectionLost registers fn to run after the mirror was reset because
// the connection dropped.
func (f *Facade[S]) OnConnectionLost(fn func()) {
	f.mu.Lock()
	f.onLoss = append(f.onLoss, fn)
	f.mu.Unlock()
}

// Handle declares how one inbound opcode changes the mirror. Each message
// is parsed; a message that does not yield a record is logged, counted
// and otherwise ignored. A record is applied to the mirror (apply may be
// nil) and then published on the returned feed.
func Handle[S, R any](f *Facade[S], op protocol.Opcode, parse func([]byte) (*R, error), apply func(*S, *R)) *Feed[R] {
	var changes func(*S, *R) bool
	if apply != nil {
		changes = func(s *S, rec *R) bool {
			apply(s, rec)
			return true
		}
	}
	return HandleChanges(f, op, parse, changes)
}

// HandleChanges is Handle for records that only sometimes touch the
// mirror. apply reports whether it changed anything; observers hear about
// the mirror only when it did.
func HandleChanges[S, R any](f *Facade[S], op protocol.Opcode, parse func([]byte) (*R, error), apply func(*S, *R) bool) *Feed[R] {
	feed := newFeed[R](f.name+"."+op.String(), f.opts.FeedBuffer, f.opts.Metrics)

	sub := f.router.Subscribe(op, f.name, func(msg protocol.Message) {
		rec, err := parse(msg.Payload)
		if err != nil || rec == nil {
			f.opts.Metrics.MessageDropped(f.name, op.String())
			f.log.Debug().
				Err(err).
				Str("opcode", op.String()).
				Int("size", len(msg.Payload)).
				Msg("discarded undecodable message")
			return
		}

		if apply != nil && f.mirror.Apply(func(s *S) bool { return apply(s, rec) }) && f.opts.Observer != nil {
			f.opts.Observer.MirrorChanged(f.name, f.mirror.Snapshot())
		}

		feed.publish(*rec)
		if f.opts.Observer != nil {
			f.opts.Observer.RecordDecoded(f.name, op, *rec)
		}
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		sub.Close()
		feed.close()
		return feed
	}
	f.subs = append(f.subs, sub)
	f.feeds = append(f.feeds, feed)
	return feed
}

// Send builds nothing itself: it hands a finished payload to the router
// and classifies failures.
func (f *Facade[S]) Send(ctx context.Context, op protocol.Opcode, payload []byte) error {
	if f.Disposed() {
		return fmt.Errorf("%s: %w", f.name, ErrDisposed)
	}
	err := f.router.Send(ctx, op, payload)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrNotConnected):
		return fmt.Errorf("%s: failed to send %s: %w", f.name, op, ErrNotConnected)
	default:
		return &TransportError{Subsystem: f.name, Opcode: op, Err: err}
	}
}

// Require returns a *PreconditionError naming operation when ok is false.
func (f *Facade[S]) Require(ok bool, operation, reason string) error {
	if ok {
		return nil
	}
	return &PreconditionError{Subsystem: f.name, Operation: operation, Reason: reason}
}

// Flow returns the correlation settings for one named operation.
func (f *Facade[S]) Flow(operation string) correlate.Flow {
	fl := correlate.Flow{
		Operation: f.name + "." + operation,
		Timeout:   f.opts.CorrelationTimeout,
		Log:       f.log,
		Metrics:   f.opts.Metrics,
	}
	if to, ok := f.opts.Observer.(TimeoutObserver); ok {
		fl.OnTimeout = to.CorrelationTimedOut
	}
	return fl
}

// Expect starts a correlated observation owned by f. Disposing f releases
// it and ends any wait on it.
func Expect[S, R any](f *Facade[S], op protocol.Opcode, parse func([]byte) (*R, error), match func(R) bool) *correlate.Expectation[R] {
	exp := correlate.Expect(f.life, f.router, op, parse, match)

	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		exp.Release()
		return exp
	}
	f.pendingSeq++
	id := f.pendingSeq
	f.pending[id] = exp
	f.mu.Unlock()

	exp.AfterRelease(func() {
		f.mu.Lock()
		delete(f.pending, id)
		f.mu.Unlock()
	})
	return exp
}

// ExpectAlso extends exp, made by Expect on f, to another opcode carrying
// the same record shape.
func ExpectAlso[S, R any](f *Facade[S], exp *correlate.Expectation[R], op protocol.Opcode, parse func([]byte) (*R, error)) *correlate.Expectation[R] {
	return exp.Also(f.router, op, parse)
}

// Pending returns the number of unreleased correlations.
func (f *Facade[S]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Disposed reports whether Dispose was called.
func (f *Facade[S]) Disposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

// Dispose detaches every handler, freezes the mirror, closes the feeds and
// releases outstanding correlations. Handlers never run again once it has
// returned. Calling it again is a no-op.
func (f *Facade[S]) Dispose() error {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return nil
	}
	f.disposed = true
	subs := f.subs
	feeds := f.feeds
	pending := make([]releaser, 0, len(f.pending))
	for _, p := range f.pending {
		pending = append(pending, p)
	}
	f.subs, f.feeds = nil, nil
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	f.mirror.Freeze()
	f.cancel()
	for _, p := range pending {
		p.Release()
	}
	for _, feed := range feeds {
		feed.close()
	}
	if f.detachLoss != nil {
		f.detachLoss()
	}

	f.log.Debug().Msg("disposed")
	return nil
}

// Confirm applies fn to the mirror for a confirmation that reached the
// facade through a correlated wait rather than a Handle declaration.
func (f *Facade[S]) Confirm(fn func(*S)) {
	if f.mirror.Update(fn) && f.opts.Observer != nil {
		f.opts.Observer.MirrorChanged(f.name, f.mirror.Snapshot())
	}
}

// Reset returns the mirror to rest.
func (f *Facade[S]) Reset() {
	if f.mirror.Reset() && f.opts.Observer != nil {
		f.opts.Observer.MirrorChanged(f.name, f.mirror.Snapshot())
	}
}

// Rest returns the mirror's rest value. Close confirmations assign it
// inside their apply function.
func (f *Facade[S]) Rest() S {
	return f.rest
}

func (f *Facade[S]) connectionLost() {
	f.Reset()
	f.log.Info().Msg("connection lost, mirror reset")

	f.mu.Lock()
	hooks := append([]func(){}, f.onLoss...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
