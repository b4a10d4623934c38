package socket

import (
	"net/http"
	"sync"
	"time"

	"noteszone/pkg/logger"
	"noteszone/pkg/response"
	"noteszone/pkg/token"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options bounds a single connection.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// EventTimeout bounds the handling of one inbound event.
	EventTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
}

func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 1 << 20,
		SendBuffer:     256,
		EventTimeout:   10 * time.Second,
	}
}

// Client is one authenticated websocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity token.Identity
	send     chan []byte

	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, identity token.Identity) *Client {
	buffer := hub.opts.SendBuffer
	if buffer <= 0 {
		buffer = DefaultOptions().SendBuffer
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, buffer),
	}
}

func (c *Client) Identity() token.Identity { return c.identity }

func (c *Client) UserID() string { return c.identity.ID }

func (c *Client) Deliver(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeSend is called once the client has left every room.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ServeWs authenticates the request, upgrades it and starts the client pumps.
func ServeWs(hub *Hub, gateway *Gateway, w http.ResponseWriter, r *http.Request) {
	identity, err := gateway.Authenticate(r)
	if err != nil {
		logger.Log.Info("websocket rejected", zap.String("remote", r.RemoteAddr))
		response.Fail(w, r, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     hub.opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Errorf("websocket upgrade: %v", err)
		return
	}

	client := newClient(hub, conn, identity)
	logger.Log.Info("websocket connected", zap.String("user", identity.ID))

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Sugar.Warnf("websocket read for %s: %v", c.identity.ID, err)
			}
			return
		}
		// Events from one connection are handled in arrival order.
		c.hub.HandleMessage(c, raw)
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
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
