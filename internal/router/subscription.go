package router

import "sync"

// Subscription is one listener on one opcode.
type Subscription struct {
	name    string
	handler HandlerFunc
	stream  *stream

	mu       sync.RWMutex
	isClosed bool
	once     sync.Once
	closed   chan struct{}
}

// Close detaches the subscription. It waits for an in-flight delivery to
// finish, so the handler is never invoked once Close has returned.
// Calling Close more than once is a no-op.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.isClosed = true
		s.mu.Unlock()

		s.stream.remove(s)
		close(s.closed)
	})
}

// Done is closed when the connection ends the opcode's stream. For an
// unsupported opcode it never closes.
func (s *Subscription) Done() <-chan struct{} {
	return s.stream.done
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isClosed
}

// Supported reports whether the connection can deliver the opcode.
func (s *Subscription) Supported() bool {
	return s.stream.supported
}
