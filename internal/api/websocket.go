package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/museum-robotics/tourguide-core/internal/auth"
	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/logging"
)

// Dashboard message types.
const (
	WSTypeMoveCommand = "moveCommand"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// moveCommandTimeout bounds publishing one navigation goal.
	moveCommandTimeout = 5 * time.Second
)

// Envelope is a message sent to a dashboard client.
type Envelope struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// inboundMessage is a message received from a dashboard client.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MoveFunc forwards a navigation goal to the robot.
type MoveFunc func(ctx context.Context, goal robot.PoseSample) error

// Hub is the set of open dashboard connections. It implements
// robot.Broadcaster: every envelope goes to every client.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	moveMu sync.RWMutex
	move   MoveFunc
}

var _ robot.Broadcaster = (*Hub)(nil)

// WSClient represents a connected dashboard.
type WSClient struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	claims *auth.CustomClaims
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new dashboard hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger.Component("dashboard"),
		clients: make(map[*WSClient]struct{}),
	}
}

// SetMoveHandler sets where move commands from dashboards are sent.
func (h *Hub) SetMoveHandler(fn MoveFunc) {
	h.moveMu.Lock()
	defer h.moveMu.Unlock()
	h.move = fn
}

func (h *Hub) moveHandler() MoveFunc {
	h.moveMu.RLock()
	defer h.moveMu.RUnlock()
	return h.move
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("dashboard client connected", "client_id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that removes the client from the map closes its send
// channel, so shutdown and a failing read pump cannot double-close it.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("dashboard client disconnected", "client_id", client.id, "clients", h.ClientCount())
}

// Broadcast sends {type, data} to every connected client. Slow clients
// whose buffers are full miss the message.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "type", msgType, "error", err)
		return
	}

	// Snapshot under the hub lock, send after releasing it
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(payload)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the request to a dashboard connection.
// Authentication is via ticket query parameter (obtained from POST /auth/ws-ticket).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	claims, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:     uuid.NewString(),
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		claims: claims,
	}

	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the dashboard connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	deadline := pingInterval + pongWait

	extend := func() {
		if deadline > 0 {
			//nolint:errcheck // Best-effort deadline reset
			c.conn.SetReadDeadline(time.Now().Add(deadline))
		}
	}
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("dashboard read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("dashboard connection closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message counts as liveness, browsers do not always
		// answer protocol-level pings.
		extend()
		c.handleMessage(message)
	}
}

// writePump writes messages to the dashboard connection.
func (c *WSClient) writePump() {
	pingInterval := time.Duration(c.hub.cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	writeWait := time.Duration(c.hub.cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one inbound dashboard message.
func (c *WSClient) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeMoveCommand:
		c.handleMoveCommand(msg.Data)
	case WSTypePing:
		c.sendEnvelope(Envelope{Type: WSTypePong})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// handleMoveCommand publishes a navigation goal for clients allowed to
// drive the robot.
func (c *WSClient) handleMoveCommand(data json.RawMessage) {
	if c.claims == nil {
		c.sendError("not authorised to move the robot")
		return
	}
	if err := c.claims.CanControlRobot(); err != nil {
		if errors.Is(err, auth.ErrNoControl) {
			c.sendError("robot control is not assigned to you")
		} else {
			c.sendError("not authorised to move the robot")
		}
		return
	}

	var goal robot.PoseSample
	if len(data) == 0 || json.Unmarshal(data, &goal) != nil {
		c.sendError("invalid move command")
		return
	}

	move := c.hub.moveHandler()
	if move == nil {
		c.sendError("robot unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKeyClaims, c.claims), moveCommandTimeout)
	defer cancel()
	if err := move(ctx, goal); err != nil {
		c.hub.logger.Warn("move command failed", "client_id", c.id, "error", err)
		c.sendError("move command failed: " + err.Error())
		return
	}
	c.hub.logger.Info("move command sent", "client_id", c.id, "user", c.claims.Subject, "x", goal.X, "y", goal.Y)
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendEnvelope(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends {type:"error", message} to the client.
func (c *WSClient) sendError(message string) {
	c.sendEnvelope(Envelope{Type: WSTypeError, Message: message})
}
