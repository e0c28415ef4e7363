package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
)

// queryer is the part of *sql.DB and *sql.Tx the statements need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is a function that runs within a transaction.
type TxFunc func(*sql.Tx) error

// WithTransaction runs fn in a transaction, committing when it returns nil
// and rolling back otherwise. A panic rolls back and is re-raised.
func (db *DB) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
			}
		} else {
			err = tx.Commit()
			if err != nil {
				err = fmt.Errorf("failed to commit transaction: %w", err)
			}
		}
	}()

	err = fn(tx)
	return err
}

// SettleGame saves a finished game and adds delta to its player's total in
// one transaction. A stale revision or a missing player leaves both rows
// untouched.
func (db *DB) SettleGame(ctx context.Context, r game.Record, delta int) (player.Player, error) {
	var p player.Player
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := db.saveGame(ctx, tx, r); err != nil {
			return err
		}
		var err error
		p, err = db.addPoints(ctx, tx, r.PlayerID, delta)
		return err
	})
	if err != nil {
		return player.Player{}, err
	}
	return p, nil
}
