// Package replay pushes a stored capture session through a fresh facade
// set so its mirrors can be inspected offline.
package replay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/facade"
	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/network"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// DefaultSettle is how long Run waits after the last queued message is
// taken, so its handlers can finish.
const DefaultSettle = 50 * time.Millisecond

// Options configure a replay. Observer, when set, hears every decoded
// record and mirror change.
type Options struct {
	Player   protocol.GUID
	NameTTL  time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Observer subsystem.Observer
	Settle   time.Duration
}

// Result is a replayed session. Close disposes the facades.
type Result struct {
	Set      *facade.Set
	Inbound  int
	Outbound int
	First    time.Time
	Last     time.Time

	loop *network.Loopback
}

// Close disposes the facade set and ends the loopback.
func (r *Result) Close() error {
	return multierr.Append(r.Set.Dispose(), r.loop.Close())
}

// Run injects every inbound message of msgs, in order, and waits for the
// facades to take them. Outbound messages are counted but not replayed:
// they were the client's requests, and the server's answers that follow
// them are already in the capture. The facade clock reads the capture
// time of the message being injected.
func Run(ctx context.Context, msgs []db.CapturedMessage, opts Options) (*Result, error) {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}

	var now atomic.Int64
	if len(msgs) > 0 {
		now.Store(msgs[0].At.UnixNano())
	}
	clock := func() time.Time { return time.Unix(0, now.Load()).UTC() }

	loop := network.NewLoopback()
	r := router.New(loop, opts.Logger, opts.Metrics)
	set := facade.NewSet(r, facade.SetConfig{Player: opts.Player, NameTTL: opts.NameTTL}, subsystem.Options{
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		Observer: opts.Observer,
		Clock:    clock,
	})
	res := &Result{Set: set, loop: loop}

	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			res.Close()
			return nil, err
		}
		if res.First.IsZero() {
			res.First = m.At
		}
		res.Last = m.At

		if m.Direction != network.DirectionInbound {
			res.Outbound++
			continue
		}
		now.Store(m.At.UnixNano())
		loop.Inject(m.Opcode, m.Payload)
		res.Inbound++
	}

	if err := drain(ctx, loop, opts.Settle); err != nil {
		res.Close()
		return nil, err
	}
	return res, nil
}

func drain(ctx context.Context, loop *network.Loopback, settle time.Duration) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for loop.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
