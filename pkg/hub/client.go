package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Keepalive timings. The browser answers pings automatically; a client
// silent for idleTimeout is considered gone.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = time.Minute
	pingInterval = idleTimeout * 9 / 10

	// Dashboards only send control frames.
	readLimit = 4 << 10
)

// Client is one websocket connection subscribed to a Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient queues initial ahead of any broadcast, so a new dashboard
// renders a snapshot before live updates arrive.
func NewClient(h *Hub, conn *websocket.Conn, initial ...Message) *Client {
	c := &Client{hub: h, conn: conn, send: make(chan Message, queueSize+len(initial))}
	for _, m := range initial {
		c.send <- m
	}
	return c
}

// Run serves the connection until either side goes away. Call it from the
// websocket handler; it blocks.
func (c *Client) Run() {
	if !c.hub.join(c) {
		c.conn.Close()
		return
	}
	go c.write()
	c.read()
	c.hub.leave(c)
	c.conn.Close()
}

// read discards inbound frames; it exists to notice disconnects and to
// extend the deadline on every pong.
func (c *Client) read() {
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	c.conn.SetReadLimit(readLimit)
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// write owns all writes to conn. It returns when send is closed or a
// write fails.
func (c *Client) write() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer c.conn.Close()

	frame := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				frame(websocket.CloseMessage, nil)
				return
			}
			if frame(websocket.TextMessage, msg.Data) != nil {
				return
			}
		case <-ping.C:
			if frame(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}
