// Package correlate pairs an outgoing request with the inbound message
// that confirms it.
//
// The protocol has no request/response envelope, so a confirmation is
// recognised by a predicate over one inbound opcode and waited for with a
// deadline. A wait that runs out is not a failure: the caller carries on
// and the outcome is logged and counted.
package correlate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
)

// DefaultTimeout is how long a flow waits for its confirmation.
const DefaultTimeout = time.Second

// Outcome is how a correlated wait ended.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCanceled  Outcome = "canceled"
)

// Expectation observes one opcode, or a few that share a record shape,
// for the first record that satisfies a predicate. It is created before
// the request goes out so a fast reply cannot slip past it.
type Expectation[R any] struct {
	op      protocol.Opcode
	life    context.Context
	match   func(R) bool
	subs    []*router.Subscription
	matched chan R

	mu           sync.Mutex
	released     bool
	afterRelease []func()
}

// Expect starts observing op on r. Messages that fail to parse or do not
// satisfy match are ignored; a nil match accepts every record. life bounds
// the expectation from the owner's side: when it ends, waits return early.
func Expect[R any](life context.Context, r *router.Router, op protocol.Opcode, parse func([]byte) (*R, error), match func(R) bool) *Expectation[R] {
	e := &Expectation[R]{
		op:      op,
		life:    life,
		match:   match,
		matched: make(chan R, 1),
	}
	e.subs = append(e.subs, e.observe(r, op, parse))
	return e
}

// Also extends e to another opcode whose records have the same shape,
// such as the compressed form of a message. It does nothing once e is
// released.
func (e *Expectation[R]) Also(r *router.Router, op protocol.Opcode, parse func([]byte) (*R, error)) *Expectation[R] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return e
	}
	e.subs = append(e.subs, e.observe(r, op, parse))
	return e
}

func (e *Expectation[R]) observe(r *router.Router, op protocol.Opcode, parse func([]byte) (*R, error)) *router.Subscription {
	return r.Subscribe(op, "correlate", func(msg protocol.Message) {
		rec, err := parse(msg.Payload)
		if err != nil || rec == nil {
			return
		}
		if e.match != nil && !e.match(*rec) {
			return
		}
		select {
		case e.matched <- *rec:
		default:
		}
	})
}

// Opcode returns the first observed opcode.
func (e *Expectation[R]) Opcode() protocol.Opcode {
	return e.op
}

// Wait blocks until a matching record arrives, timeout elapses, ctx is
// cancelled or the owner's lifetime ends. Only the first two are
// outcomes; the others return OutcomeCanceled with an error.
func (e *Expectation[R]) Wait(ctx context.Context, timeout time.Duration) (R, Outcome, error) {
	var zero R
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-e.matched:
		return rec, OutcomeConfirmed, nil
	case <-timer.C:
		return zero, OutcomeTimedOut, nil
	case <-ctx.Done():
		return zero, OutcomeCanceled, ctx.Err()
	case <-e.life.Done():
		return zero, OutcomeCanceled, e.life.Err()
	}
}

// Release stops observing. It is safe to call more than once.
func (e *Expectation[R]) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	hooks := e.afterRelease
	subs := e.subs
	e.afterRelease = nil
	e.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	for _, fn := range hooks {
		fn()
	}
}

// AfterRelease registers fn to run once the expectation is released. If
// it already was, fn runs immediately.
func (e *Expectation[R]) AfterRelease(fn func()) {
	e.mu.Lock()
	if !e.released {
		e.afterRelease = append(e.afterRelease, fn)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	fn()
}

// Flow names a correlated operation and carries its deadline and sinks.
type Flow struct {
	Operation string
	Timeout   time.Duration
	Log       zerolog.Logger
	Metrics   *metrics.Metrics
	OnTimeout func(operation string, waited time.Duration)
}

// Run issues a request, waits for its confirmation and then runs the
// dependent action whether or not the confirmation came. A failure to
// issue the request is returned and the dependent action is skipped. The
// expectation is always released before Run returns.
func Run[R any](ctx context.Context, fl Flow, exp *Expectation[R], issue, then func(context.Context) error) (Outcome, error) {
	defer exp.Release()

	if err := issue(ctx); err != nil {
		return "", err
	}

	_, outcome, err := Await(ctx, fl, exp)
	if err != nil {
		return outcome, err
	}

	if then == nil {
		return outcome, nil
	}
	return outcome, then(ctx)
}

// Await is the single-step form: wait on exp, then log and count the
// outcome. It does not release exp.
func Await[R any](ctx context.Context, fl Flow, exp *Expectation[R]) (R, Outcome, error) {
	start := time.Now()
	rec, outcome, err := exp.Wait(ctx, fl.Timeout)
	waited := time.Since(start)

	fl.Metrics.Correlation(fl.Operation, string(outcome), waited)
	event := fl.Log.Info()
	if outcome == OutcomeCanceled {
		event = fl.Log.Debug()
	}
	event.
		Str("operation", fl.Operation).
		Str("opcode", exp.Opcode().String()).
		Str("outcome", string(outcome)).
		Dur("waited", waited).
		Msg("correlated wait finished")
	if outcome == OutcomeTimedOut && fl.OnTimeout != nil {
		fl.OnTimeout(fl.Operation, waited)
	}
	return rec, outcome, err
}
