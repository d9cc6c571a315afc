package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
)

// ActionFunc applies an action request and returns the response body.
type ActionFunc func(ctx context.Context, req domain.ActionRequest, source string) domain.ActionResponse

// Hub owns the set of live websocket subscribers. It observes the
// registry: every committed change is encoded once and queued to each
// subscriber without blocking. Subscribers whose queue is full are
// pruned.
type Hub struct {
	source ports.AgentSource

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	onAction ActionFunc
}

func NewHub(source ports.AgentSource) *Hub {
	return &Hub{
		source:  source,
		clients: make(map[*Client]struct{}),
	}
}

// SetActionHandler wires agent_action frames to the action gateway.
func (h *Hub) SetActionHandler(fn ActionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAction = fn
}

// Register adds c and queues its snapshot as the first message. The
// snapshot is taken while registry mutations are held off, so every
// later change reaches c after the snapshot and none is missed. It
// returns false if the hub is shut down.
func (h *Hub) Register(c *Client) bool {
	registered := false
	h.source.WithSnapshot(func(agents []domain.Agent) {
		payload, err := domain.Encode(domain.NewSnapshot(agents, time.Now()))
		if err != nil {
			logger.Error("Failed to encode snapshot", "error", err)
			return
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closed {
			return
		}
		// send is empty and buffered, so this cannot block.
		c.send <- payload
		h.clients[c] = struct{}{}
		registered = true
	})

	if registered {
		n := h.Count()
		setSubscribers(n)
		logger.Info("Client connected", "client_id", c.id, "total", n)
	}
	return registered
}

// Unregister removes c. Calling it more than once is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		setSubscribers(n)
		logger.Info("Client disconnected", "client_id", c.id, "total", n)
	}
}

// OnAgentChange implements ports.Observer.
func (h *Hub) OnAgentChange(agent domain.Agent) {
	h.Broadcast(agent)
}

// Broadcast queues an agent_update to every subscriber.
func (h *Hub) Broadcast(agent domain.Agent) {
	payload, err := domain.Encode(domain.NewAgentUpdate(agent))
	if err != nil {
		logger.Error("Failed to encode agent update", "agent_id", agent.ID, "error", err)
		return
	}

	h.mu.Lock()
	var pruned []*Client
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			close(client.send)
			delete(h.clients, client)
			pruned = append(pruned, client)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	recordBroadcast()
	if len(pruned) > 0 {
		setSubscribers(n)
		for _, c := range pruned {
			recordPruned()
			logger.Warn("Pruned slow client", "client_id", c.id, "agent_id", agent.ID, "total", n)
		}
	}
}

// sendTo queues payload for a single subscriber.
func (h *Hub) sendTo(c *Client, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	setSubscribers(0)
}

// handleFrame processes one inbound frame from a subscriber.
func (h *Hub) handleFrame(c *Client, data []byte) {
	var req domain.ActionRequest
	var resp domain.ActionResponse
	if err := json.Unmarshal(data, &req); err != nil {
		logger.Debug("Malformed frame", "client_id", c.id, "error", err)
		resp = domain.NewActionFailure(domain.ErrMissingFields)
	} else if req.Type != domain.MessageTypeAgentAction {
		logger.Debug("Ignoring frame", "client_id", c.id, "type", req.Type)
		return
	} else {
		h.mu.Lock()
		onAction := h.onAction
		h.mu.Unlock()
		if onAction == nil {
			return
		}

		ctx := logger.ContextWithRequestID(context.Background(), uuid.NewString())
		resp = onAction(ctx, req, auditSourceWS)
	}
	resp.Type = domain.MessageTypeActionResult

	payload, err := domain.Encode(resp)
	if err != nil {
		logger.Error("Failed to encode action result", "error", err)
		return
	}
	if !h.sendTo(c, payload) {
		logger.Warn("Dropped action result", "client_id", c.id, "agent_id", req.AgentID)
	}
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound frames buffered per subscriber before it is pruned.
	sendBufferSize = 256

	// Close code sent when the handshake token is wrong.
	closeInvalidToken = 4001
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // token auth, any origin
	},
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id  string
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of encoded outbound frames.
	send chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// readPump reads agent_action frames until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("WebSocket error", "client_id", c.id, "error", err)
			}
			return
		}
		c.hub.handleFrame(c, data)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("Write to client failed", "client_id", c.id, "error", err)
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

// ServeWs upgrades the request and registers the subscriber. A bad token
// is rejected after the upgrade with close code 4001 so clients see a
// websocket-level reason.
func ServeWs(hub *Hub, auth *TokenAuth, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	if !auth.Valid(r) {
		recordAuthFailure("ws")
		logger.Warn("Rejected websocket connection", "remote", r.RemoteAddr)
		deadline := time.Now().Add(writeWait)
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeInvalidToken, domain.CodeInvalidToken), deadline)
		conn.Close()
		return
	}

	client := newClient(hub, conn)
	if !hub.Register(client) {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}
