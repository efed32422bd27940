package facade

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/energizer-project/realmlink/internal/correlate"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
	"github.com/energizer-project/realmlink/internal/subsystem"
)

// PingState holds the last measured round trip.
type PingState struct {
	LastSeq uint32        `json:"last_seq"`
	Latency time.Duration `json:"latency"`
	At      time.Time     `json:"at"`
}

// Pinger measures session latency with CMSG_PING / SMSG_PONG.
type Pinger struct {
	*subsystem.Facade[PingState]

	seq     atomic.Uint32
	latency atomic.Int64
	pongs   *subsystem.Feed[protocol.Pong]
}

// NewPinger creates the session health facade.
func NewPinger(r *router.Router, opts subsystem.Options) *Pinger {
	p := &Pinger{Facade: subsystem.New("session", r, PingState{}, opts)}
	p.pongs = subsystem.Handle(p.Facade, protocol.SmsgPong, protocol.ParsePong, nil)
	return p
}

// Pongs returns the feed of pong replies.
func (p *Pinger) Pongs() (<-chan protocol.Pong, func()) { return p.pongs.Subscribe() }

// Latency returns the last measured round trip.
func (p *Pinger) Latency() time.Duration { return p.Snapshot().Latency }

// Ping sends a ping and waits for its pong. ok is false when the pong did
// not arrive in time.
func (p *Pinger) Ping(ctx context.Context) (rtt time.Duration, ok bool, err error) {
	seq := p.seq.Add(1)
	exp := subsystem.Expect(p.Facade, protocol.SmsgPong, protocol.ParsePong, func(pong protocol.Pong) bool {
		return pong.Seq == seq
	})
	defer exp.Release()

	start := time.Now()
	last := uint32(time.Duration(p.latency.Load()) / time.Millisecond)
	if err := p.Send(ctx, protocol.CmsgPing, protocol.BuildPing(seq, last)); err != nil {
		return 0, false, err
	}
	_, outcome, err := correlate.Await(ctx, p.Flow("ping"), exp)
	if err != nil || outcome != correlate.OutcomeConfirmed {
		return 0, false, err
	}

	rtt = time.Since(start)
	p.latency.Store(int64(rtt))
	p.Confirm(func(s *PingState) {
		s.LastSeq = seq
		s.Latency = rtt
		s.At = p.Now()
	})
	return rtt, true, nil
}
