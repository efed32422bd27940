// Package network carries world protocol messages between the facades and
// a realm: a reconnecting TCP client for live sessions and an in-memory
// loopback for tests and capture replay.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/energizer-project/realmlink/internal/events"
	"github.com/energizer-project/realmlink/internal/metrics"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultReconnectDelay = 10 * time.Second
	DefaultQueueSize      = 256
)

// Capture directions passed to a Tap.
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

// Tap sees every message that crosses the wire. It is called from the
// read loop and from senders, so it must not block.
type Tap interface {
	Capture(direction string, msg protocol.Message)
}

// ClientConfig configures a Client. Zero durations take the defaults.
type ClientConfig struct {
	Address        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ReconnectDelay time.Duration
	QueueSize      int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Client maintains the TCP session to a realm's world server and
// demultiplexes inbound messages into one queue per opcode. It implements
// router.Connection.
type Client struct {
	cfg      ClientConfig
	eventBus *events.EventBus
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	onLoss    func()
	tap       Tap

	// writeMu serializes frames on the wire; mu is never held across I/O.
	writeMu sync.Mutex

	chMu   sync.RWMutex
	chans  map[protocol.Opcode]chan protocol.Message
	closed bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewClient creates a disconnected client. eventBus and m may be nil.
func NewClient(cfg ClientConfig, eventBus *events.EventBus, m *metrics.Metrics, logger zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		eventBus: eventBus,
		metrics:  m,
		log:      logger.With().Str("component", "client").Str("addr", cfg.Address).Logger(),
		chans:    make(map[protocol.Opcode]chan protocol.Message),
		stopCh:   make(chan struct{}),
	}
}

// SetLossHandler registers the function called each time an established
// session ends.
func (c *Client) SetLossHandler(fn func()) {
	c.mu.Lock()
	c.onLoss = fn
	c.mu.Unlock()
}

// SetTap installs a tap; nil removes it.
func (c *Client) SetTap(t Tap) {
	c.mu.Lock()
	c.tap = t
	c.mu.Unlock()
}

// Listen implements router.Connection. Every opcode is supported; the
// queue survives reconnects and is closed only by Close.
func (c *Client) Listen(op protocol.Opcode) (<-chan protocol.Message, bool) {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	if c.closed {
		return nil, false
	}
	ch, ok := c.chans[op]
	if !ok {
		ch = make(chan protocol.Message, c.cfg.QueueSize)
		c.chans[op] = ch
	}
	return ch, true
}

// Send implements router.Connection. Frames from concurrent senders never
// interleave. A write that fails or is cut short by ctx may leave part of a
// frame on the wire, so the session is dropped and the manager reconnects.
func (c *Client) Send(ctx context.Context, op protocol.Opcode, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	conn, tap, connected := c.conn, c.tap, c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return fmt.Errorf("%s: %w", op, router.ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { conn.SetWriteDeadline(time.Now()) })
	err := protocol.WriteClientMessage(conn, op, payload)
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		c.log.Error().Err(err).Stringer("opcode", op).Msg("send failed, dropping session")
		c.drop(context.WithoutCancel(ctx), conn, "send failed: "+err.Error())
		return err
	}

	if tap != nil {
		tap.Capture(DirectionOutbound, protocol.Message{Opcode: op, Payload: payload})
	}
	return nil
}

// ManageConnection keeps the session up until ctx ends or Close is
// called: it dials, reads until the session drops, waits the reconnect
// delay and dials again.
func (c *Client) ManageConnection(ctx context.Context) error {
	c.log.Info().Msg("starting realm connection manager")
	c.setState(ctx, events.ConnectionConnecting, "")

	for {
		select {
		case <-ctx.Done():
			c.disconnect(ctx, "shutdown")
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		if err := c.connect(ctx); err != nil {
			c.log.Error().Err(err).Msg("realm connection failed")
			if !c.wait(ctx, c.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}

		// Blocks until the session drops.
		c.readLoop(ctx)

		c.log.Warn().Msg("disconnected from realm, reconnecting...")
		c.metrics.Reconnect()
		if !c.wait(ctx, c.cfg.ReconnectDelay) {
			return nil
		}
	}
}

func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.log.Info().Msg("connecting to realm")

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to realm at %s: %w", c.cfg.Address, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	c.setState(ctx, events.ConnectionConnected, "")
	c.log.Info().Msg("connected to realm")
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.disconnect(ctx, "shutdown")
			return
		case <-c.stopCh:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		connected := c.connected
		c.mu.Unlock()
		if !connected || conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		msg, err := protocol.ReadServerMessage(conn)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, io.EOF):
				c.log.Info().Msg("realm closed connection")
			default:
				c.log.Error().Err(err).Msg("error reading from realm")
			}
			c.disconnect(ctx, reason(err))
			return
		}

		c.mu.Lock()
		tap := c.tap
		c.mu.Unlock()
		if tap != nil {
			tap.Capture(DirectionInbound, msg)
		}
		c.dispatch(msg)
	}
}

func reason(err error) string {
	if errors.Is(err, io.EOF) {
		return "closed by peer"
	}
	return err.Error()
}

// dispatch queues msg for its opcode. Messages for opcodes nobody listens
// to are discarded. A full queue blocks the read loop, which pushes back
// on the server instead of losing messages.
func (c *Client) dispatch(msg protocol.Message) {
	c.chMu.RLock()
	defer c.chMu.RUnlock()
	ch, ok := c.chans[msg.Opcode]
	if !ok || c.closed {
		return
	}
	select {
	case ch <- msg:
	case <-c.stopCh:
	}
}

// disconnect ends the current session, if any, and reports its loss.
func (c *Client) disconnect(ctx context.Context, why string) {
	c.drop(ctx, nil, why)
}

// drop ends the session when it still runs on conn; a nil conn matches
// any session. A sender holding a connection that was already replaced
// leaves the new session alone.
func (c *Client) drop(ctx context.Context, conn net.Conn, why string) {
	c.mu.Lock()
	if !c.connected || (conn != nil && c.conn != conn) {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	onLoss := c.onLoss
	c.mu.Unlock()

	c.metrics.SetConnected(false)
	c.setState(ctx, events.ConnectionDisconnected, why)
	c.log.Info().Str("reason", why).Msg("disconnected from realm")
	if onLoss != nil {
		onLoss()
	}
}

func (c *Client) setState(ctx context.Context, state events.ConnectionState, why string) {
	if c.eventBus == nil {
		return
	}
	typ := events.EventConnectionLost
	switch state {
	case events.ConnectionConnected:
		typ = events.EventConnectionEstablished
	case events.ConnectionConnecting:
		return
	}
	c.eventBus.Emit(ctx, events.Event{
		Type:   typ,
		Source: "client",
		Payload: events.ConnectionPayload{
			Address: c.cfg.Address,
			State:   state,
			Reason:  why,
			At:      time.Now(),
		},
	})
}

// IsConnected reports whether a session is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close stops the connection manager, drops the session and closes every
// opcode queue. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)

		c.mu.Lock()
		if c.conn != nil {
			err = multierr.Append(err, c.conn.Close())
			c.conn = nil
		}
		wasConnected := c.connected
		c.connected = false
		onLoss := c.onLoss
		c.mu.Unlock()

		c.chMu.Lock()
		c.closed = true
		for op, ch := range c.chans {
			close(ch)
			delete(c.chans, op)
		}
		c.chMu.Unlock()

		if wasConnected {
			c.metrics.SetConnected(false)
			c.setState(context.Background(), events.ConnectionStopped, "closed")
			if onLoss != nil {
				onLoss()
			}
		}
	})
	return err
}
