package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultHandlerQueue is how many events a handler may fall behind by
// before Emit starts dropping events for it.
const DefaultHandlerQueue = 256

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// BusOption configures an EventBus.
type BusOption func(*EventBus)

// WithHandlerQueue sets the per-handler queue length.
func WithHandlerQueue(n int) BusOption {
	return func(eb *EventBus) {
		if n > 0 {
			eb.queueSize = n
		}
	}
}

// EventBus is an asynchronous publish-subscribe event system. Every
// handler has its own queue and goroutine, so a handler sees events in
// emit order and a slow handler delays nobody else. Facades, the
// transport and the health checks emit on it; telemetry listens.
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[EventType][]*subscriber
	stopCh    chan struct{}
	stopped   bool
	wg        sync.WaitGroup
	queueSize int
	dropped   atomic.Uint64
	log       zerolog.Logger
}

type subscriber struct {
	name    string
	handler HandlerFunc
	queue   chan queuedEvent
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// NewEventBus creates a new EventBus instance.
func NewEventBus(logger zerolog.Logger, opts ...BusOption) *EventBus {
	eb := &EventBus{
		handlers:  make(map[EventType][]*subscriber),
		stopCh:    make(chan struct{}),
		queueSize: DefaultHandlerQueue,
		log:       logger.With().Str("component", "events").Logger(),
	}
	for _, opt := range opts {
		opt(eb)
	}
	return eb
}

// Subscribe registers a handler function for a specific event type.
// The name is what Unsubscribe and the logs refer to.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.stopped {
		eb.log.Warn().Str("event", string(eventType)).Str("handler", name).Msg("subscribe after stop ignored")
		return
	}

	s := &subscriber{
		name:    name,
		handler: handler,
		queue:   make(chan queuedEvent, eb.queueSize),
	}
	eb.handlers[eventType] = append(eb.handlers[eventType], s)

	eb.wg.Add(1)
	go eb.work(eventType, s)

	eb.log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

func (eb *EventBus) work(eventType EventType, s *subscriber) {
	defer eb.wg.Done()
	for q := range s.queue {
		eb.run(q.ctx, s, q.event)
	}
}

// Unsubscribe removes a named handler from a specific event type. Events
// already queued for it are still handled.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs, exists := eb.handlers[eventType]
	if !exists {
		return
	}

	kept := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		if s.name == name {
			close(s.queue)
			continue
		}
		kept = append(kept, s)
	}
	eb.handlers[eventType] = kept

	eb.log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("unsubscribed from event")
}

// Emit queues an event for every handler of its type and returns without
// waiting. A handler whose queue is full misses the event; Dropped counts
// those.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return
	}

	subs := eb.handlers[event.Type]
	if len(subs) == 0 {
		return
	}

	eb.log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(subs)).
		Msg("emitting event")

	for _, s := range subs {
		select {
		case s.queue <- queuedEvent{ctx: ctx, event: event}:
		default:
			eb.dropped.Add(1)
			eb.log.Warn().
				Str("event", string(event.Type)).
				Str("handler", s.name).
				Msg("handler queue full, event dropped")
		}
	}
}

// EmitSync runs every handler of the event's type on the calling
// goroutine, bypassing the queues, and returns the first error.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	eb.mu.RLock()
	if eb.stopped {
		eb.mu.RUnlock()
		return nil
	}
	subs := append([]*subscriber(nil), eb.handlers[event.Type]...)
	eb.mu.RUnlock()

	var firstErr error
	for _, s := range subs {
		if err := eb.run(ctx, s, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (eb *EventBus) run(ctx context.Context, s *subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eb.log.Error().
				Str("event", string(event.Type)).
				Str("handler", s.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = s.handler(ctx, event); err != nil {
		eb.log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", s.name).
			Msg("handler returned error")
	}
	return err
}

// Dropped returns how many events were lost to full handler queues.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

// Stop stops accepting events, lets every handler finish its queue and
// waits for them. Calling it twice is a no-op.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	close(eb.stopCh)
	for _, subs := range eb.handlers {
		for _, s := range subs {
			close(s.queue)
		}
	}
	eb.handlers = make(map[EventType][]*subscriber)
	eb.mu.Unlock()

	eb.wg.Wait()
	eb.log.Info().Msg("event bus stopped")
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for a specific event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
