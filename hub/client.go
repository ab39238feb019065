package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is a Conn backed by a gorilla websocket.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(id string, conn *websocket.Conn, h *Hub) *Client {
	return &Client{
		id:   id,
		conn: conn,
		hub:  h,
		send: make(chan []byte, h.opts.SendBuffer),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues msg without blocking. A full queue is reported as a failure
// so the hub drops the connection instead of stalling the broadcast.
func (c *Client) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	log := c.hub.logger.With(zap.String("client", c.id))
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Read error", zap.Error(err))
			}
			return
		}

		var payload any
		if err := json.Unmarshal(message, &payload); err != nil {
			c.hub.metrics.InboundMessages.WithLabelValues("malformed").Inc()
			log.Warn("Invalid message format", zap.Int("bytes", len(message)), zap.Error(err))
			continue
		}
		c.hub.metrics.InboundMessages.WithLabelValues("ok").Inc()
		log.Info("Received", zap.Any("message", payload))
	}
}

func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug("Write failed", zap.String("client", c.id), zap.Error(err))
				c.hub.Unregister(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}
		}
	}
}
