package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hirewire/chat-service/internal/config"
	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/pkg/log"
)

// Client is one live websocket connection and its session state.
type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Session *domain.Session

	send   chan []byte
	sendMu sync.Mutex
	closed bool

	config config.WebSocketConfig
}

// NewClient creates a client for a fresh connection. The session starts
// unauthenticated.
func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Session: domain.NewSession(id),
		send:    make(chan []byte, 256),
		config:  cfg,
	}
}

// ReadPump reads messages from the connection and feeds them to the
// handler. It owns the read deadline: a connection that misses pongs
// past PongWait is treated as dead and torn down through onDisconnect.
func (c *Client) ReadPump(handler func(*Client, []byte), onDisconnect func(*Client)) {
	defer func() {
		onDisconnect(c)
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		c.Session.UpdateActivity()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnID, c.ID).Msg("websocket read error")
			}
			break
		}

		c.Session.UpdateActivity()
		handler(c, message)
	}
}

// WritePump drains the send queue to the connection and emits the
// heartbeat pings the read side of the peer must answer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// EnforceAuthDeadline closes the connection if it has not authenticated
// within d, so unauthenticated connections cannot hold resources.
func (c *Client) EnforceAuthDeadline(d time.Duration) {
	time.AfterFunc(d, func() {
		if !c.Session.IsAuthenticated() {
			l := log.L()
			l.Info().Str(log.FieldConnID, c.ID).Msg("authentication deadline expired, closing connection")
			c.Close()
		}
	})
}

// Close tears the transport connection down, which unwinds ReadPump and
// runs the disconnect transition.
func (c *Client) Close() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// SendMessage marshals and queues an event for delivery. Events to a
// slow or closed client are dropped; at-least-once delivery with client
// resync on reconnect is the contract.
func (c *Client) SendMessage(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

// Outbound exposes the queued outgoing events. WritePump is the normal
// consumer; alternative transports may drain it directly.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

func (c *Client) enqueue(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		l := log.L()
		l.Warn().Str(log.FieldConnID, c.ID).Msg("send buffer full, dropping event")
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
