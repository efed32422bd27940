package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/realmlink/internal/protocol"
)

const (
	DefaultRecorderQueue = 1024
	recorderBatch        = 64
	recorderFlushEvery   = 250 * time.Millisecond
)

type recorderItem struct {
	end       bool
	direction string
	msg       protocol.Message
	at        time.Time
}

// Recorder writes captured traffic to a CaptureDatabase from a single
// goroutine. A session is opened with the first message after a start or
// a loss. Capture never blocks: when the queue is full the message is
// counted and dropped.
type Recorder struct {
	store   *CaptureDatabase
	address string
	player  string
	clock   protocol.Clock
	log     zerolog.Logger

	queue   chan recorderItem
	dropped atomic.Uint64

	mu      sync.Mutex
	session int64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRecorder creates a recorder for traffic with the realm at address.
func NewRecorder(store *CaptureDatabase, address, player string, clock protocol.Clock, logger zerolog.Logger) *Recorder {
	if clock == nil {
		clock = protocol.SystemClock
	}
	return &Recorder{
		store:   store,
		address: address,
		player:  player,
		clock:   clock,
		log:     logger.With().Str("component", "recorder").Logger(),
		queue:   make(chan recorderItem, DefaultRecorderQueue),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Capture queues msg. It satisfies the transport's tap contract.
func (r *Recorder) Capture(direction string, msg protocol.Message) {
	item := recorderItem{
		direction: direction,
		msg:       protocol.Message{Opcode: msg.Opcode, Payload: append([]byte(nil), msg.Payload...)},
		at:        r.clock(),
	}
	select {
	case <-r.stopCh:
		return
	default:
	}
	select {
	case r.queue <- item:
	default:
		r.dropped.Add(1)
	}
}

// EndSession closes the current capture session once everything queued
// before it has been written.
func (r *Recorder) EndSession() {
	select {
	case r.queue <- recorderItem{end: true, at: r.clock()}:
	case <-r.stopCh:
	}
}

// Session returns the ID of the open session, or 0.
func (r *Recorder) Session() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Dropped returns how many messages were lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued messages until ctx ends or Close is called, then
// flushes and closes the open session.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(recorderFlushEvery)
	defer ticker.Stop()

	var (
		seq   int64
		batch []CapturedMessage
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.Record(batch...); err != nil {
			r.log.Error().Err(err).Int("messages", len(batch)).Msg("failed to write captures")
		}
		batch = batch[:0]
	}
	end := func(at time.Time) {
		flush()
		r.mu.Lock()
		id := r.session
		r.session = 0
		r.mu.Unlock()
		if id == 0 {
			return
		}
		if err := r.store.EndSession(id, at); err != nil {
			r.log.Warn().Err(err).Int64("session", id).Msg("failed to end capture session")
		}
		seq = 0
	}
	handle := func(item recorderItem) {
		if item.end {
			end(item.at)
			return
		}
		r.mu.Lock()
		id := r.session
		r.mu.Unlock()
		if id == 0 {
			var err error
			id, err = r.store.StartSession(r.address, r.player, item.at)
			if err != nil {
				r.log.Error().Err(err).Msg("failed to start capture session")
				return
			}
			r.mu.Lock()
			r.session = id
			r.mu.Unlock()
			r.log.Info().Int64("session", id).Msg("capture session started")
		}
		seq++
		batch = append(batch, CapturedMessage{
			SessionID: id,
			Seq:       seq,
			Direction: item.direction,
			Opcode:    item.msg.Opcode,
			Payload:   item.msg.Payload,
			At:        item.at,
		})
		if len(batch) >= recorderBatch {
			flush()
		}
	}

	for {
		select {
		case item := <-r.queue:
			handle(item)
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			r.drain(handle)
			end(r.clock())
			return
		case <-r.stopCh:
			r.drain(handle)
			end(r.clock())
			return
		}
	}
}

func (r *Recorder) drain(handle func(recorderItem)) {
	for {
		select {
		case item := <-r.queue:
			handle(item)
		default:
			return
		}
	}
}

// Close stops Run and waits for it to finish writing. Run must have been
// started.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}
