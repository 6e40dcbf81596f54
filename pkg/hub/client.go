package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Subscriber timing. Pings keep idle event feeds open through proxies.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only listen; a data frame larger than this ends the session.
	maxInboundBytes = 512

	sendBuffer = 64
)

// closeReason is sent with the going-away frame when the feed shuts down.
const closeReason = "event feed closed"

// Conn is the subset of a websocket connection the hub uses.
// *websocket.Conn from gofiber/contrib satisfies it.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one subscriber of the event feed.
type Client struct {
	ID string

	hub  *Hub
	conn Conn
	send chan []byte
}

// NewClient registers a subscriber for conn with hub.
func NewClient(hub *Hub, conn Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	hub.registerClient(c)
	return c
}

// Run serves the subscriber and blocks until either side closes.
func (c *Client) Run() {
	go c.deliver()
	c.awaitClose()
}

// awaitClose consumes inbound frames so pongs and the peer's close frame are
// seen. Its return unregisters the subscriber.
func (c *Client) awaitClose() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.hub.logger.Debug("subscriber read ended", "client", c.ID, "error", err)
		}
		return
	}
}

// deliver is the only writer on the connection.
func (c *Client) deliver() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case event, ok := <-c.send:
			if !ok {
				// Hub stopped or dropped us
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, closeReason))
				return
			}
			err = c.write(websocket.TextMessage, event)
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			c.hub.logger.Debug("subscriber write failed", "client", c.ID, "error", err)
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
