package hub

import (
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be less than pongWait

	// maxMessageSize caps inbound client messages; clients only send pongs
	maxMessageSize = 4 * 1024

	// sendBuffer is how many messages a client may fall behind
	sendBuffer = 64
)

// Conn is the subset of *websocket.Conn the client pumps use
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one websocket subscriber of a hub
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message

	// kinds limits which envelopes the client receives; nil means all
	kinds map[string]bool

	// skipped counts droppable messages lost to a full buffer. Only the
	// hub goroutine touches it.
	skipped uint64
}

// ClientOption configures a client
type ClientOption func(*Client)

// WithKinds subscribes the client to the given envelope kinds only.
// Empty names are ignored; no names means every kind.
func WithKinds(kinds ...string) ClientOption {
	return func(c *Client) {
		for _, k := range kinds {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if c.kinds == nil {
				c.kinds = make(map[string]bool)
			}
			c.kinds[k] = true
		}
	}
}

// ParseKinds splits a comma separated ?kinds= query value.
func ParseKinds(q string) []string {
	if q == "" {
		return nil
	}
	return strings.Split(q, ",")
}

// NewClient registers a client with the hub. It returns nil when the hub
// has stopped.
func NewClient(hub *Hub, conn Conn, opts ...ClientOption) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}

	select {
	case hub.register <- c:
		return c
	case <-hub.done:
		return nil
	}
}

// accepts reports whether msg passes the client's kind filter.
// Messages without a kind (binary frames) always pass.
func (c *Client) accepts(msg Message) bool {
	return c.kinds == nil || msg.Kind == "" || c.kinds[msg.Kind]
}

// Run pumps messages until the connection closes. Call it from the
// websocket handler; it blocks.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reading is only for disconnect detection and pongs
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine that writes to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			wsType int
			data   []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			wsType, data = websocket.TextMessage, msg.Data
			if msg.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}

		case <-ticker.C:
			wsType, data = websocket.PingMessage, nil
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(wsType, data); err != nil {
			return
		}
	}
}
