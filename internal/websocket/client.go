package websocket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xelth-com/dsrelay/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are native apps and browsers on other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TokenChecker validates the bearer token presented on connect
type TokenChecker interface {
	CheckToken(ctx context.Context, account, token string) bool
}

// Normalizer canonicalizes the account query parameter
type Normalizer interface {
	Normalize(identity string) (string, error)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	SocketID string
	Account  string

	// Runs once after the client left the hub
	onClose func()
}

// readPump drains the connection until it fails, then detaches the client
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: %s read error: %v", c.SocketID, err)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Gateway upgrades authenticated requests to push channels and records the
// socket id on the account's session.
type Gateway struct {
	hub      *Hub
	tokens   TokenChecker
	sessions store.SessionStore
	names    Normalizer
}

// NewGateway wires a Gateway
func NewGateway(hub *Hub, tokens TokenChecker, sessions store.SessionStore, names Normalizer) *Gateway {
	return &Gateway{hub: hub, tokens: tokens, sessions: sessions, names: names}
}

// ServeHTTP handles GET /ws?account=...&token=...
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := g.names.Normalize(r.URL.Query().Get("account"))
	if err != nil {
		http.Error(w, "rejected", http.StatusUnauthorized)
		return
	}
	if !g.tokens.CheckToken(ctx, account, r.URL.Query().Get("token")) {
		http.Error(w, "rejected", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed for %s: %v", account, err)
		return
	}

	client := &Client{
		hub:      g.hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		SocketID: uuid.New().String(),
		Account:  account,
	}
	client.onClose = func() { g.release(account, client.SocketID) }

	if !g.hub.join(client) {
		conn.Close()
		return
	}
	if err := g.attach(context.WithoutCancel(ctx), account, client.SocketID); err != nil {
		log.Printf("ws: failed to record socket for %s: %v", account, err)
	}

	go client.writePump()
	go client.readPump()
}

func (g *Gateway) attach(ctx context.Context, account, socketID string) error {
	return g.sessions.AttachSocket(ctx, account, socketID)
}

// release clears the session's socket id unless a newer connection took over
func (g *Gateway) release(account, socketID string) {
	if _, err := g.sessions.ReleaseSocket(context.Background(), account, socketID); err != nil {
		log.Printf("ws: failed to clear socket for %s: %v", account, err)
	}
}
