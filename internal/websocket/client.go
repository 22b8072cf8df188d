package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"barchat/internal/config"
	"barchat/internal/logging"
	"barchat/internal/metrics"
	"barchat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

// Client is one admitted connection: a live duplex channel to one peer,
// bound to a single room for its whole lifetime.
type Client struct {
	ID          string
	RoomID      string
	UserID      string
	DisplayName string

	conn     Conn
	send     chan []byte
	registry *Registry
	broker   *Broker
	limiter  *rate.Limiter
	log      zerolog.Logger

	closeOnce sync.Once
	sendMu    sync.Mutex
	closed    bool
}

func NewClient(conn Conn, registry *Registry, broker *Broker, adm *Admission, cfg config.ChatConfig) *Client {
	id := uuid.New().String()
	return &Client{
		ID:          id,
		RoomID:      adm.RoomID,
		UserID:      adm.UserID,
		DisplayName: adm.DisplayName,
		conn:        conn,
		send:        make(chan []byte, cfg.SendBuffer),
		registry:    registry,
		broker:      broker,
		limiter:     rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst),
		log: logging.Logger().With().
			Str("conn_id", id).
			Str("room_id", adm.RoomID).
			Str("user_id", adm.UserID).
			Str("role", adm.Role).
			Logger(),
	}
}

// ReadPump reads inbound frames and dispatches them to the broker. It
// runs until the socket closes or errors, then performs this
// connection's cleanup. A panic in message handling is contained here
// and converted into cleanup for this connection only.
func (c *Client) ReadPump() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("recovered in read pump")
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if !c.limiter.Allow() {
			c.SendError("rate limit exceeded")
			continue
		}

		c.broker.HandleInbound(c, message)
	}
}

// WritePump drains the send queue onto the socket and keeps the
// connection alive with pings. One writer per connection; nothing else
// writes to the socket after admission.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a frame without blocking. It reports false when the
// connection is closed or its queue is full; a slow peer never stalls
// the caller.
func (c *Client) TrySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendError queues an error frame for this connection only.
func (c *Client) SendError(message string) {
	data, err := json.Marshal(models.NewErrorFrame(message))
	if err != nil {
		return
	}
	c.TrySend(data)
}

// Close deregisters the connection, stops the write pump and closes the
// socket. Safe to call from any goroutine, any number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.registry.Deregister(c.RoomID, c)

		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()

		_ = c.conn.Close()
		c.log.Info().Msg("connection closed")
	})
}

// Reject writes a single structured rejection notice on an unadmitted
// socket and closes it. The connection never touches the registry.
func Reject(conn Conn, reason string) {
	metrics.AdmissionsTotal.WithLabelValues(reason).Inc()
	notice, err := json.Marshal(models.RejectionNotice{Error: reason})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, notice)
	}
	_ = conn.Close()
}
