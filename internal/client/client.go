// Package client is a typed HTTP and websocket client for the blackjack
// server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
	"github.com/lox/blackjack/internal/server"
	"github.com/lox/blackjack/internal/service"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

// Is maps error codes back onto the engine's sentinel errors so callers can
// use errors.Is the same way on both sides of the wire.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "game_not_found":
		return target == game.ErrNotFound
	case "player_not_found":
		return target == player.ErrNotFound
	case "invalid_move":
		return target == game.ErrInvalidMove
	case "invalid_input":
		return target == service.ErrInvalidInput || target == player.ErrInvalidName
	case "player_already_exists":
		return target == player.ErrAlreadyExists
	case "deck_exhausted":
		return target == deck.ErrExhausted
	case "game_in_progress":
		return target == game.ErrInProgress
	case "game_conflict":
		return target == game.ErrConflict
	}
	return false
}

// ErrRateLimited is returned when the server answers 429.
var ErrRateLimited = errors.New("rate limited")

// Client talks to one blackjack server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the server at serverURL.
func New(serverURL string, logger *log.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", serverURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.WithPrefix("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Request", "method", method, "url", u.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, u.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var data server.ErrorData
	if err := json.NewDecoder(resp.Body).Decode(&data); err == nil {
		apiErr.Code = data.Code
		apiErr.Message = data.Message
	}
	return apiErr
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.endpoint("/health", nil), nil, nil)
}

// CreateGame starts a game for playerName.
func (c *Client) CreateGame(ctx context.Context, playerName string) (service.Result, error) {
	var res service.Result
	err := c.do(ctx, http.MethodPost, c.endpoint("/games/new", nil), map[string]string{"playerName": playerName}, &res)
	return res, err
}

// GetGame fetches a game.
func (c *Client) GetGame(ctx context.Context, id string) (service.Result, error) {
	var res service.Result
	err := c.do(ctx, http.MethodGet, c.endpoint("/games/"+url.PathEscape(id), nil), nil, &res)
	return res, err
}

// Move plays a hit or stand.
func (c *Client) Move(ctx context.Context, id string, move game.Move) (service.Result, error) {
	var res service.Result
	err := c.do(ctx, http.MethodPost, c.endpoint("/games/"+url.PathEscape(id)+"/move", nil), map[string]string{"move": string(move)}, &res)
	return res, err
}

// Result fetches the outcome of a finished game.
func (c *Client) Result(ctx context.Context, id string) (service.Result, error) {
	var res service.Result
	err := c.do(ctx, http.MethodGet, c.endpoint("/games/"+url.PathEscape(id)+"/result", nil), nil, &res)
	return res, err
}

// DeleteGame removes a game.
func (c *Client) DeleteGame(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("/games/"+url.PathEscape(id)+"/delete", nil), nil, nil)
}

// ListGames lists a player's games.
func (c *Client) ListGames(ctx context.Context, playerID int64) ([]game.Snapshot, error) {
	var games []game.Snapshot
	query := url.Values{"player": {strconv.FormatInt(playerID, 10)}}
	err := c.do(ctx, http.MethodGet, c.endpoint("/games", query), nil, &games)
	return games, err
}

// CreatePlayer registers a player.
func (c *Client) CreatePlayer(ctx context.Context, name string) (player.Player, error) {
	var p player.Player
	err := c.do(ctx, http.MethodPost, c.endpoint("/players/new", nil), map[string]string{"name": name}, &p)
	return p, err
}

// GetPlayer fetches a player.
func (c *Client) GetPlayer(ctx context.Context, id int64) (player.Player, error) {
	var p player.Player
	err := c.do(ctx, http.MethodGet, c.endpoint("/players/"+strconv.FormatInt(id, 10), nil), nil, &p)
	return p, err
}

// RenamePlayer changes a player's name.
func (c *Client) RenamePlayer(ctx context.Context, id int64, name string) (player.Player, error) {
	var p player.Player
	err := c.do(ctx, http.MethodPut, c.endpoint("/players/"+strconv.FormatInt(id, 10)+"/name", nil), map[string]string{"name": name}, &p)
	return p, err
}

// Ranking lists players by points. An empty ranking is a nil slice.
func (c *Client) Ranking(ctx context.Context) ([]player.Player, error) {
	var players []player.Player
	err := c.do(ctx, http.MethodGet, c.endpoint("/players/ranking", nil), nil, &players)
	return players, err
}
