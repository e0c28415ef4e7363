// Package storage persists players and game records.
//
// Four backends share one contract: an in-memory store, SQL stores on
// sqlite or postgres, and a directory of JSON documents. Every backend makes
// point increments atomic and guards game saves with a revision number, so
// a save of a stale record fails with game.ErrConflict instead of
// overwriting a newer one. SettleGame stores a finished game together with
// its point delta, or neither.
package storage

import (
	"context"
	"fmt"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
)

// Backend is a complete player and game store.
type Backend interface {
	player.Store

	SaveGame(ctx context.Context, r game.Record) error
	LoadGame(ctx context.Context, id string) (game.Record, error)
	DeleteGame(ctx context.Context, id string) error
	ListGames(ctx context.Context, playerID int64) ([]game.Record, error)
	SettleGame(ctx context.Context, r game.Record, delta int) (player.Player, error)

	Close() error
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg *Config) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFiles:
		return NewFileStore(cfg.DSN)
	case DriverSQLite, DriverPostgres:
		return OpenDB(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
