package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/events"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
	"github.com/lox/blackjack/internal/service"
	"github.com/lox/blackjack/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialGame(t *testing.T, ts *testServer, id string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sendMove(t *testing.T, conn *websocket.Conn, requestID, move string) {
	t.Helper()

	data, err := json.Marshal(MoveData{Move: move})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeMove, Data: data, RequestID: requestID}))
}

func createGame(t *testing.T, ts *testServer) service.Result {
	t.Helper()

	resp := ts.do(t, http.MethodPost, "/games/new", "alice")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[service.Result](t, resp)
}

func TestWebSocketSendsInitialState(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, stacked("Ts 9h Td 8c"))
	g := createGame(t, ts)

	conn := dialGame(t, ts, g.ID)
	msg := readMessage(t, conn)

	require.Equal(t, MessageTypeGameState, msg.Type)
	var state service.Result
	require.NoError(t, json.Unmarshal(msg.Data, &state))
	assert.Equal(t, g.ID, state.ID)
	assert.Equal(t, game.Active, state.Status)
}

func TestWebSocketUnknownGame(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, stacked("Ts 9h Td 8c"))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketMoveAndWatch(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, stacked("Ts 9h Td 8c"))
	g := createGame(t, ts)

	player := dialGame(t, ts, g.ID)
	watcher := dialGame(t, ts, g.ID)
	readMessage(t, player)
	readMessage(t, watcher)

	require.Eventually(t, func() bool { return ts.hub.Watchers(g.ID) == 2 }, time.Second, 10*time.Millisecond)

	sendMove(t, player, "r1", "stand")

	// the mover receives the event and its reply in either order
	var state *service.Result
	for i := 0; i < 2; i++ {
		msg := readMessage(t, player)
		if msg.Type == MessageTypeGameState {
			assert.Equal(t, "r1", msg.RequestID)
			state = &service.Result{}
			require.NoError(t, json.Unmarshal(msg.Data, state))
		}
	}
	require.NotNil(t, state)
	assert.Equal(t, game.Finished, state.Status)

	msg := readMessage(t, watcher)
	require.Equal(t, MessageTypeGameEvent, msg.Type)
	var e events.Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, events.GameFinished, e.Type)
	assert.Equal(t, "PLAYER", e.Winner)
	assert.Equal(t, 2, e.Delta)
}

func TestWebSocketRejectsBadMoves(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, stacked("Ts 9h Td 8c"))
	g := createGame(t, ts)

	conn := dialGame(t, ts, g.ID)
	readMessage(t, conn)

	sendMove(t, conn, "r2", "split")
	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "r2", msg.RequestID)

	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "invalid_move", data.Code)

	require.NoError(t, conn.WriteJSON(Message{Type: "chat"}))
	msg = readMessage(t, conn)
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "unknown_message_type", data.Code)
}

func TestHubForgetsClosedConnections(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, stacked("Ts 9h Td 8c"))
	g := createGame(t, ts)

	conn := dialGame(t, ts, g.ID)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return ts.hub.Watchers(g.ID) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return ts.hub.Watchers(g.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func newRegisterServer(t *testing.T) (*Server, *service.Service) {
	t.Helper()

	logger := testLogger()
	clock := quartz.NewReal()
	store := storage.NewMemory()
	players := player.NewService(store, logger)
	hub := NewHub(logger, clock)
	games := service.New(logger, players, store,
		service.WithDeckSource(stacked("Ts 9h Td 8c")),
		service.WithPublisher(hub),
		service.WithClock(clock))
	return New(games, players, hub, logger, WithClock(clock)), games
}

func queued(t *testing.T, c *Connection) []*Message {
	t.Helper()

	var msgs []*Message
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestRegisterSendsInitialStateBeforeEvents(t *testing.T) {
	ctx := context.Background()
	srv, games := newRegisterServer(t)

	res, err := games.CreateGame(ctx, "alice")
	require.NoError(t, err)

	c := NewConnection(nil, res.ID, games, srv.clock, srv.logger)
	srv.register(ctx, c, res)
	assert.Equal(t, 1, srv.hub.Watchers(res.ID))

	_, err = games.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)

	msgs := queued(t, c)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageTypeGameState, msgs[0].Type)
	assert.Equal(t, MessageTypeGameEvent, msgs[1].Type)
}

func TestRegisterCatchesMoveMadeWhileSubscribing(t *testing.T) {
	ctx := context.Background()
	srv, games := newRegisterServer(t)

	stale, err := games.CreateGame(ctx, "alice")
	require.NoError(t, err)

	// finishes before the watcher joins, so its event goes nowhere
	_, err = games.ApplyMove(ctx, stale.ID, game.Stand)
	require.NoError(t, err)

	c := NewConnection(nil, stale.ID, games, srv.clock, srv.logger)
	srv.register(ctx, c, stale)

	msgs := queued(t, c)
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		require.Equal(t, MessageTypeGameState, msg.Type)
	}

	var first, last service.Result
	require.NoError(t, json.Unmarshal(msgs[0].Data, &first))
	require.NoError(t, json.Unmarshal(msgs[1].Data, &last))
	assert.Equal(t, game.Active, first.Status)
	assert.Equal(t, game.Finished, last.Status)
}

func TestRegisterSendsOneStateWhenNothingChanged(t *testing.T) {
	ctx := context.Background()
	srv, games := newRegisterServer(t)

	res, err := games.CreateGame(ctx, "alice")
	require.NoError(t, err)

	c := NewConnection(nil, res.ID, games, srv.clock, srv.logger)
	srv.register(ctx, c, res)

	msgs := queued(t, c)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageTypeGameState, msgs[0].Type)
}
