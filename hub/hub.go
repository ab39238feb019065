package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"papertrade/metrics"
	"papertrade/protocol"
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// Conn is one registered price feed connection.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Open() bool
	Close()
}

type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
		AllowedOrigins: []string{"*"},
	}
}

// Hub is the connection registry. Every registered connection receives every
// broadcast.
type Hub struct {
	clients   map[Conn]struct{}
	clientMux sync.RWMutex

	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
	upgrader websocket.Upgrader
}

func New(logger *zap.Logger, m *metrics.Metrics, opts Options) *Hub {
	if m == nil {
		m = metrics.New()
	}
	def := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}

	h := &Hub{
		clients: make(map[Conn]struct{}),
		logger:  logger.Named("hub"),
		metrics: m,
		opts:    opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// Register sends the connection acknowledgment and adds c to the set.
func (h *Hub) Register(c Conn) {
	ack, _ := json.Marshal(protocol.Connected())
	if err := c.Send(ack); err != nil {
		h.logger.Warn("Failed to acknowledge connection", zap.String("client", c.ID()), zap.Error(err))
		c.Close()
		return
	}

	h.clientMux.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.clientMux.Unlock()

	h.metrics.Connections.Set(float64(n))
	h.logger.Info("New WebSocket connection", zap.String("client", c.ID()), zap.Int("clients", n))
}

// Unregister removes and closes c. Safe to call more than once.
func (h *Hub) Unregister(c Conn) {
	h.clientMux.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.clientMux.Unlock()

	c.Close()
	if ok {
		h.metrics.Connections.Set(float64(n))
		h.logger.Info("WebSocket connection closed", zap.String("client", c.ID()), zap.Int("clients", n))
	}
}

// Broadcast serializes msg once and sends it to every open connection. A
// connection whose send fails is dropped; the rest still receive the frame.
// It returns the number of connections the frame was handed to.
func (h *Hub) Broadcast(msg protocol.Message) int {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", zap.String("type", msg.Type), zap.Error(err))
		return 0
	}
	return h.BroadcastRaw(b)
}

func (h *Hub) BroadcastRaw(b []byte) int {
	h.clientMux.RLock()
	snapshot := make([]Conn, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.clientMux.RUnlock()

	delivered := 0
	for _, c := range snapshot {
		if !c.Open() {
			continue
		}
		if err := c.Send(b); err != nil {
			h.metrics.SendFailures.Inc()
			h.logger.Warn("Dropping connection after failed send", zap.String("client", c.ID()), zap.Error(err))
			h.Unregister(c)
			continue
		}
		delivered++
	}
	h.metrics.Delivered.Add(float64(delivered))
	return delivered
}

func (h *Hub) Len() int {
	h.clientMux.RLock()
	defer h.clientMux.RUnlock()
	return len(h.clients)
}

// CloseAll drops every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.clientMux.Lock()
	conns := make([]Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[Conn]struct{})
	h.clientMux.Unlock()

	for _, c := range conns {
		c.Close()
	}
	h.metrics.Connections.Set(0)
}

// ServeHTTP upgrades the request and registers the new connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn, h)
	h.Register(c)
	if !c.Open() {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
