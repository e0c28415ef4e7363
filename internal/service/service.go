// Package service is the blackjack engine API: it loads games from a store,
// runs one transition at a time per game id, applies settlement points to
// the player and publishes lifecycle events.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/events"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/gameid"
	"github.com/lox/blackjack/internal/player"
)

// ErrInvalidInput is returned for missing or malformed request fields.
var ErrInvalidInput = errors.New("invalid input")

// Players is the player collaborator used by the engine.
type Players interface {
	CreateOrFetch(ctx context.Context, name string) (player.Player, error)
	Get(ctx context.Context, id int64) (player.Player, error)
	IncrementPoints(ctx context.Context, id int64, delta int) (player.Player, error)
}

// GameStore persists game records. LoadGame and DeleteGame return an error
// matching game.ErrNotFound for unknown ids. SaveGame rejects a record whose
// Version is not the stored revision with game.ErrConflict.
type GameStore interface {
	SaveGame(ctx context.Context, r game.Record) error
	LoadGame(ctx context.Context, id string) (game.Record, error)
	DeleteGame(ctx context.Context, id string) error
	ListGames(ctx context.Context, playerID int64) ([]game.Record, error)
}

// IDGenerator mints game ids.
type IDGenerator interface {
	Generate() string
}

// Result is a game view together with its player. Player.Status is set
// once the game has finished.
type Result struct {
	game.Snapshot
	Player player.Player `json:"player"`
}

// Service runs games.
type Service struct {
	players Players
	games   GameStore
	logger  *log.Logger

	clock  quartz.Clock
	decks  DeckSource
	events events.Publisher
	ids    IDGenerator

	locks *keyedMutex
}

// New creates a game service.
func New(logger *log.Logger, players Players, games GameStore, opts ...Option) *Service {
	s := &Service{
		players: players,
		games:   games,
		logger:  logger.WithPrefix("games"),
		clock:   quartz.NewReal(),
		decks:   NewShuffledDecks(time.Now().UnixNano()),
		events:  events.Nop{},
		ids:     gameid.NewGenerator(nil),
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGame deals a new game for the named player, creating the player on
// first use.
func (s *Service) CreateGame(ctx context.Context, playerName string) (Result, error) {
	p, err := s.players.CreateOrFetch(ctx, playerName)
	if err != nil {
		if errors.Is(err, player.ErrInvalidName) {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return Result{}, err
	}

	g, err := game.New(s.ids.Generate(), p.ID, s.decks.NewDeck(), s.clock.Now())
	if err != nil {
		return Result{}, err
	}

	if err := s.games.SaveGame(ctx, g.Record()); err != nil {
		return Result{}, fmt.Errorf("save game %s: %w", g.ID(), err)
	}

	s.logger.Info("Game created", "game", g.ID(), "player", p.Name)
	s.publish(ctx, events.GameCreated, g, 0)
	return s.result(g, p), nil
}

// GetGame returns a game without modifying it.
func (s *Service) GetGame(ctx context.Context, id string) (Result, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return Result{}, err
	}

	p, err := s.playerOf(ctx, g)
	if err != nil {
		return Result{}, err
	}
	return s.result(g, p), nil
}

// Settler is implemented by stores that save a finished game and apply its
// point delta as one step. Every storage backend does.
type Settler interface {
	SettleGame(ctx context.Context, r game.Record, delta int) (player.Player, error)
}

// maxAttempts bounds how often a transition is replayed after losing a save
// race with another writer.
const maxAttempts = 3

// ApplyMove plays a hit or stand. Moves on a finished game change nothing.
// A hit on an exhausted deck fails with deck.ErrExhausted and leaves the
// game active. When the move finishes the game its points are applied with
// the save; if the player no longer exists the move fails and the stored
// game stays active. Once decided, a move is written even if ctx is
// cancelled.
func (s *Service) ApplyMove(ctx context.Context, id string, move game.Move) (Result, error) {
	if move != game.Hit && move != game.Stand {
		return Result{}, fmt.Errorf("%w: %q", game.ErrInvalidMove, move)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	return s.retry(id, func() (Result, error) {
		return s.applyMove(ctx, id, move)
	})
}

// retry replays fn while it loses save races. Each attempt reloads the game,
// so a move that lost to a finishing move sees the finished game.
func (s *Service) retry(id string, fn func() (Result, error)) (Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := fn()
		if !errors.Is(err, game.ErrConflict) || attempt == maxAttempts {
			return res, err
		}
		s.logger.Debug("Game changed by another writer, reloading", "game", id, "attempt", attempt)
	}
}

func (s *Service) applyMove(ctx context.Context, id string, move game.Move) (Result, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return Result{}, err
	}

	if g.IsFinished() {
		p, err := s.playerOf(ctx, g)
		if err != nil {
			return Result{}, err
		}
		return s.result(g, p), nil
	}

	var outcome *game.Outcome
	if move == game.Hit {
		outcome, err = g.Hit()
		if err != nil {
			return Result{}, err
		}
	} else {
		outcome = g.Stand()
	}
	g.Touch(s.clock.Now())

	persist := context.WithoutCancel(ctx)
	if outcome == nil {
		if err := s.games.SaveGame(persist, g.Record()); err != nil {
			return Result{}, fmt.Errorf("save game %s: %w", id, err)
		}
		p, err := s.playerOf(persist, g)
		if err != nil {
			return Result{}, err
		}
		s.logger.Debug("Move applied", "game", id, "move", move, "score", g.PlayerHand().Score())
		s.publish(persist, events.GameUpdated, g, 0)
		return s.result(g, p), nil
	}

	p, err := s.settle(persist, g, outcome)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("Game finished", "game", id, "move", move,
		"winner", outcome.Winner, "delta", outcome.Delta, "total", p.TotalPoints)
	s.publish(persist, events.GameFinished, g, outcome.Delta)
	return s.result(g, p), nil
}

// settle stores a game that just finished and applies its outcome. Stores
// without SettleGame get the player checked first, then the save, then the
// increment, so a failed save never leaves points applied.
func (s *Service) settle(ctx context.Context, g *game.Game, o *game.Outcome) (player.Player, error) {
	r := g.Record()
	if settler, ok := s.games.(Settler); ok {
		p, err := settler.SettleGame(ctx, r, o.Delta)
		if err != nil {
			return player.Player{}, fmt.Errorf("settle game %s: %w", r.ID, err)
		}
		return p, nil
	}

	if _, err := s.players.Get(ctx, r.PlayerID); err != nil {
		return player.Player{}, fmt.Errorf("settle game %s: %w", r.ID, err)
	}
	if err := s.games.SaveGame(ctx, r); err != nil {
		return player.Player{}, fmt.Errorf("save game %s: %w", r.ID, err)
	}
	p, err := s.players.IncrementPoints(ctx, r.PlayerID, o.Delta)
	if err != nil {
		s.logger.Error("Game saved but points not applied",
			"game", r.ID, "player", r.PlayerID, "delta", o.Delta, "error", err)
		return player.Player{}, fmt.Errorf("settle game %s: %w", r.ID, err)
	}
	return p, nil
}

// Settle returns the result of a finished game. It never applies points;
// those were applied when the game finished. An active game fails with
// game.ErrInProgress.
func (s *Service) Settle(ctx context.Context, id string) (Result, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.retry(id, func() (Result, error) {
		return s.settleResult(ctx, id)
	})
}

func (s *Service) settleResult(ctx context.Context, id string) (Result, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return Result{}, err
	}

	before := g.Winner()
	if _, ok := g.Result(); !ok {
		return Result{}, fmt.Errorf("settle game %s: %w", id, game.ErrInProgress)
	}
	if g.Winner() != before {
		s.logger.Warn("Stored winner disagrees with hands", "game", id, "stored", before, "winner", g.Winner())
		if err := s.games.SaveGame(ctx, g.Record()); err != nil {
			return Result{}, fmt.Errorf("save game %s: %w", id, err)
		}
	}

	p, err := s.playerOf(ctx, g)
	if err != nil {
		return Result{}, err
	}
	return s.result(g, p), nil
}

// DeleteGame removes a game.
func (s *Service) DeleteGame(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.games.LoadGame(ctx, id)
	if err != nil {
		return err
	}
	if err := s.games.DeleteGame(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Game deleted", "game", id)
	events.PublishLogged(ctx, s.events, s.logger, events.Event{
		Type:     events.GameDeleted,
		GameID:   id,
		PlayerID: r.PlayerID,
		At:       s.clock.Now(),
	})
	return nil
}

// ListGames returns every game of a player, oldest first.
func (s *Service) ListGames(ctx context.Context, playerID int64) ([]game.Snapshot, error) {
	if _, err := s.players.Get(ctx, playerID); err != nil {
		return nil, err
	}

	records, err := s.games.ListGames(ctx, playerID)
	if err != nil {
		return nil, err
	}

	snapshots := make([]game.Snapshot, 0, len(records))
	for _, r := range records {
		g, err := game.FromRecord(r)
		if err != nil {
			s.logger.Warn("Skipping unreadable game", "game", r.ID, "error", err)
			continue
		}
		snapshots = append(snapshots, g.Snapshot())
	}
	return snapshots, nil
}

func (s *Service) load(ctx context.Context, id string) (*game.Game, error) {
	r, err := s.games.LoadGame(ctx, id)
	if err != nil {
		return nil, err
	}
	return game.FromRecord(r)
}

func (s *Service) playerOf(ctx context.Context, g *game.Game) (player.Player, error) {
	p, err := s.players.Get(ctx, g.PlayerID())
	if err != nil {
		return player.Player{}, fmt.Errorf("player of game %s: %w", g.ID(), err)
	}
	return p, nil
}

func (s *Service) result(g *game.Game, p player.Player) Result {
	if o, ok := g.Outcome(); ok {
		p = p.WithStatus(o.PlayerStatus)
	}
	return Result{Snapshot: g.Snapshot(), Player: p}
}

func (s *Service) publish(ctx context.Context, t events.Type, g *game.Game, delta int) {
	e := events.Event{
		Type:     t,
		GameID:   g.ID(),
		PlayerID: g.PlayerID(),
		Status:   g.Status().String(),
		Delta:    delta,
		At:       s.clock.Now(),
	}
	if g.IsFinished() {
		e.Winner = g.Winner().String()
	}
	events.PublishLogged(ctx, s.events, s.logger, e)
}
