package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nitikeshq/swapwallet/internal/oracle"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans price updates out to websocket subscribers. Slow clients are
// dropped instead of blocking the sampler.
type Hub struct {
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan oracle.Update
	clients    map[*wsClient]struct{}
	log        zerolog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan oracle.Update
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan oracle.Update, 64),
		clients:    make(map[*wsClient]struct{}),
		log:        log,
	}
}

// Broadcast queues an update for all subscribers. Never blocks; when the hub
// loop is saturated the update is dropped.
func (h *Hub) Broadcast(u oracle.Update) {
	select {
	case h.broadcast <- u:
	default:
		h.log.Warn().Str("pair", u.Pair).Msg("price broadcast queue full, dropping update")
	}
}

// Run owns the client set until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case update := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- update:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// ServeWS upgrades the request and subscribes it to price updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn, send: make(chan oracle.Update, 16)}
	h.register <- client

	go client.writeLoop()
	go client.readLoop(h)
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for update := range c.send {
		if err := c.conn.WriteJSON(update); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
}

// readLoop drains the connection so pings and close frames are processed.
func (c *wsClient) readLoop(h *Hub) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
