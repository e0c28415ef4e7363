package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/service"
)

// Connection is a websocket client watching one game
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	gameID    string
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	games     *service.Service
	clock     quartz.Clock
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, gameID string, games *service.Service, clock quartz.Clock, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		gameID: gameID,
		logger: logger.WithPrefix("conn").With("game", gameID),
		ctx:    ctx,
		cancel: cancel,
		games:  games,
		clock:  clock,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := c.clock.NewTicker(pingPeriod, "ws", "ping")
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)

	switch msg.Type {
	case MessageTypeMove:
		var data MoveData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse move data")
			return
		}
		c.handleMove(msg.RequestID, data)

	default:
		c.sendError(msg.RequestID, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleMove(requestID string, data MoveData) {
	move, err := game.ParseMove(data.Move)
	if err != nil {
		c.sendFailure(requestID, err)
		return
	}

	res, err := c.games.ApplyMove(c.ctx, c.gameID, move)
	if err != nil {
		c.sendFailure(requestID, err)
		return
	}
	c.sendState(requestID, res)
}

func (c *Connection) sendState(requestID string, res service.Result) {
	msg, err := NewMessage(MessageTypeGameState, res, c.clock.Now())
	if err != nil {
		c.logger.Error("Failed to encode game state", "error", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg) // Ignore send errors on closing connections
}

func (c *Connection) sendFailure(requestID string, err error) {
	status, code := errorStatus(err)
	text := err.Error()
	if status == http.StatusInternalServerError {
		c.logger.Error("Move failed", "error", err)
		text = http.StatusText(status)
	}
	c.sendError(requestID, code, text)
}

func (c *Connection) sendError(requestID, code, message string) {
	msg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message}, c.clock.Now())
	if err != nil {
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg) // Ignore send errors on closing connections
}

// handleWebSocket upgrades a request to watch one game
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	res, err := s.games.GetGame(r.Context(), gameID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, gameID, s.games, s.clock, s.logger)
	s.register(r.Context(), client, res)
	client.Start()

	go func() {
		<-client.Done()
		s.hub.remove(client)
	}()
}

// register queues the initial game_state for c and then subscribes it to
// game events. A move that lands between loading res and joining the hub
// is caught by reloading the game and sending its state again.
func (s *Server) register(ctx context.Context, c *Connection, res service.Result) {
	c.sendState("", res)
	s.hub.add(c)

	latest, err := s.games.GetGame(ctx, c.gameID)
	if err != nil {
		c.logger.Warn("Failed to reload game after subscribing", "error", err)
		return
	}
	if stateChanged(res, latest) {
		c.sendState("", latest)
	}
}

func stateChanged(a, b service.Result) bool {
	return !a.UpdatedAt.Equal(b.UpdatedAt) ||
		a.Status != b.Status ||
		len(a.PlayerCards) != len(b.PlayerCards) ||
		len(a.DealerCards) != len(b.DealerCards)
}
