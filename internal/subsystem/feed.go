package subsystem

import (
	"sync"

	"github.com/energizer-project/realmlink/internal/metrics"
)

// Feed is an observable sequence of decoded records. Every subscriber gets
// its own buffered channel; a record that finds a subscriber's buffer
// full is dropped for that subscriber only. Late subscribers see only
// later records.
type Feed[T any] struct {
	name    string
	buffer  int
	metrics *metrics.Metrics

	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

func newFeed[T any](name string, buffer int, m *metrics.Metrics) *Feed[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed[T]{
		name:    name,
		buffer:  buffer,
		metrics: m,
		subs:    make(map[uint64]chan T),
	}
}

// Subscribe returns a channel of future records and a func that detaches
// it. The channel is closed on detach or when the facade is disposed.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan T, f.buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of attached channels.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed[T]) publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- v:
		default:
			f.metrics.StreamOverflow(f.name)
		}
	}
}

func (f *Feed[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}
