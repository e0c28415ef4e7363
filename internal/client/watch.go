package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/events"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/service"
)

// Update is one message received while watching a game. Exactly one of
// State, Event or Err is set.
type Update struct {
	RequestID string
	State     *service.Result
	Event     *events.Event
	Err       *APIError
}

// Watcher streams updates for one game over a websocket.
type Watcher struct {
	conn      *websocket.Conn
	updates   chan Update
	done      chan struct{}
	stop      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
	nextReq   int
	err       error
}

// Watch opens a websocket to the game and streams its updates until ctx is
// cancelled or Close is called. The first update is the current state.
func (c *Client) Watch(ctx context.Context, gameID string) (*Watcher, error) {
	u := c.endpoint("/ws/games/"+url.PathEscape(gameID), nil)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			defer func() { _ = resp.Body.Close() }()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}

	w := &Watcher{
		conn:    conn,
		updates: make(chan Update, 16),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	go w.readPump()
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Close()
		case <-w.done:
		}
	}()

	c.logger.Debug("Watching game", "game", gameID)
	return w, nil
}

// Updates returns the update stream. It is closed when the connection ends.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Err returns the error that ended the stream, if any.
func (w *Watcher) Err() error {
	<-w.done
	return w.err
}

// Move sends a move and returns the request id the reply will carry.
func (w *Watcher) Move(move game.Move) (string, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.nextReq++
	reqID := fmt.Sprintf("req-%d", w.nextReq)

	msg, err := server.NewMessage(server.MessageTypeMove, server.MoveData{Move: string(move)}, time.Now())
	if err != nil {
		return "", err
	}
	msg.RequestID = reqID

	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := w.conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("send move: %w", err)
	}
	return reqID, nil
}

// Close shuts the connection down.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

func (w *Watcher) readPump() {
	defer func() {
		close(w.updates)
		close(w.done)
		_ = w.conn.Close()
	}()

	for {
		var msg server.Message
		if err := w.conn.ReadJSON(&msg); err != nil {
			select {
			case <-w.stop:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					w.err = err
				}
			}
			return
		}

		update, err := decodeUpdate(&msg)
		if err != nil {
			w.err = err
			return
		}
		select {
		case w.updates <- update:
		case <-w.stop:
			return
		}
	}
}

func decodeUpdate(msg *server.Message) (Update, error) {
	update := Update{RequestID: msg.RequestID}

	switch msg.Type {
	case server.MessageTypeGameState:
		var res service.Result
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			return update, fmt.Errorf("decode game state: %w", err)
		}
		update.State = &res
	case server.MessageTypeGameEvent:
		var ev events.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return update, fmt.Errorf("decode game event: %w", err)
		}
		update.Event = &ev
	case server.MessageTypeError:
		var data server.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return update, fmt.Errorf("decode error: %w", err)
		}
		update.Err = &APIError{Status: http.StatusBadRequest, Code: data.Code, Message: data.Message}
	default:
		return update, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return update, nil
}
