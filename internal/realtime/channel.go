package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/domain"
)

const (
	// Time allowed to write a message to the backend.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the backend.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size. Synthesized audio arrives base64
	// encoded in a single frame.
	maxMessageSize = 8 * 1024 * 1024

	// Default bound on the connect handshake when ctx carries no deadline.
	defaultHandshakeTimeout = 10 * time.Second

	// Buffered inbound events before the reader blocks.
	eventBuffer = 256
)

// Channel is one bidirectional WebSocket connection to a conversation
// endpoint. It produces a lazy, non-restartable stream of typed inbound
// events and serializes typed outbound events. It never reconnects on its
// own; a dropped connection surfaces as a closed event stream.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	conn   *websocket.Conn
	events chan domain.InboundEvent
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	connected atomic.Bool
	closed    atomic.Bool

	sessionID string
	welcome   string
}

// NewChannel creates an unconnected channel for the given endpoint URL.
func NewChannel(url string, logger *zap.Logger) *Channel {
	return &Channel{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: logger,
		events: make(chan domain.InboundEvent, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Connect dials the endpoint and waits for the connected event that assigns
// the session id. It is idempotent: a second call while connected returns
// the existing session id without dialing again. The handshake is bounded by
// ctx, or by a default ceiling when ctx carries no deadline.
func (c *Channel) Connect(ctx context.Context) (string, string, error) {
	if c.connected.Load() {
		return c.sessionID, c.welcome, nil
	}
	if c.closed.Load() {
		return "", "", domain.NewFault(domain.FaultConnection, errors.New("channel already closed"))
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", "", domain.NewFault(domain.FaultTimeout, err)
		}
		return "", "", domain.NewFault(domain.FaultConnection, err)
	}

	conn.SetReadLimit(maxMessageSize)

	// Await the connected event. Any other events the backend emits first
	// are buffered for the consumer.
	if err := conn.SetReadDeadline(deadline); err != nil {
		conn.Close()
		return "", "", domain.NewFault(domain.FaultConnection, err)
	}
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if isTimeout(err) {
				return "", "", domain.NewFault(domain.FaultTimeout, fmt.Errorf("no connected event: %w", err))
			}
			return "", "", domain.NewFault(domain.FaultConnection, err)
		}

		event, err := domain.DecodeInboundEvent(frame)
		if err != nil {
			c.logger.Warn("Discarding undecodable frame during handshake", zap.Error(err))
			continue
		}

		switch ev := event.(type) {
		case domain.ConnectedEvent:
			c.conn = conn
			c.sessionID = ev.SessionID
			c.welcome = ev.Welcome
			if c.welcome == "" {
				c.welcome = ev.Message
			}
			c.connected.Store(true)
			go c.readPump()
			go c.pingLoop()
			c.logger.Info("Realtime channel connected",
				zap.String("url", c.url),
				zap.String("sessionID", c.sessionID))
			return c.sessionID, c.welcome, nil
		case domain.ErrorEvent:
			conn.Close()
			return "", "", domain.NewFault(domain.FaultBackend, errors.New(ev.Message))
		default:
			select {
			case c.events <- event:
			default:
				c.logger.Warn("Dropping pre-connect event, buffer full")
			}
		}
	}
}

// Send serializes event to JSON and writes it as one text frame. There is no
// implicit retry.
func (c *Channel) Send(event any) error {
	if !c.connected.Load() {
		return domain.NewFault(domain.FaultConnection, errors.New("channel not connected"))
	}
	if c.closed.Load() {
		return domain.NewFault(domain.FaultConnection, errors.New("channel closed"))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(event); err != nil {
		return domain.NewFault(domain.FaultConnection, err)
	}
	return nil
}

// Events returns the inbound event stream. It is closed when the connection
// ends, whether by Close or by an unexpected drop.
func (c *Channel) Events() <-chan domain.InboundEvent {
	return c.events
}

// SessionID returns the backend-assigned identifier, empty before Connect.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Close sends an end event best-effort and closes the connection. A failed
// end send means the connection is already gone; closing still proceeds.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.conn != nil {
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(domain.NewEndEvent()); err != nil {
				c.logger.Debug("End event not delivered", zap.Error(err))
			}
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			c.conn.Close()
		}
	})
	return nil
}

// readPump reads frames until the connection ends, decoding each into a
// typed event for the consumer.
func (c *Channel) readPump() {
	defer close(c.events)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("Realtime channel dropped",
					zap.String("sessionID", c.sessionID),
					zap.Error(err))
			}
			return
		}

		event, err := domain.DecodeInboundEvent(frame)
		if err != nil {
			c.logger.Warn("Discarding undecodable frame",
				zap.String("sessionID", c.sessionID),
				zap.Error(err))
			continue
		}

		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

// pingLoop keeps the connection alive while it is open.
func (c *Channel) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
