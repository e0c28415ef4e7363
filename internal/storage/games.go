package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lox/blackjack/internal/game"
)

// SaveGame stores r when r.Version matches the stored revision, bumping
// it. A zero version inserts a new game.
func (db *DB) SaveGame(ctx context.Context, r game.Record) error {
	return db.saveGame(ctx, db.conn, r)
}

func (db *DB) saveGame(ctx context.Context, q queryer, r game.Record) error {
	next := r
	next.Version = r.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode game %s: %w", r.ID, err)
	}

	var res sql.Result
	if r.Version == 0 {
		res, err = q.ExecContext(ctx, db.rebind(
			`INSERT INTO games (id, player_id, status, document, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`),
			r.ID, r.PlayerID, r.Status.String(), string(doc), next.Version,
			r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli())
	} else {
		res, err = q.ExecContext(ctx, db.rebind(
			`UPDATE games SET status = ?, document = ?, version = ?, updated_at = ?
			 WHERE id = ? AND version = ?`),
			r.Status.String(), string(doc), next.Version, r.UpdatedAt.UnixMilli(),
			r.ID, r.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", r.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", r.ID, err)
	}
	if n == 0 {
		// another writer got there first, or the game was deleted
		return game.Conflict(r.ID, r.Version)
	}
	return nil
}

func decodeGame(id, doc string, version int64) (game.Record, error) {
	var r game.Record
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return game.Record{}, fmt.Errorf("%w: game %s: %v", game.ErrCorruptRecord, id, err)
	}
	r.Version = version
	return r, nil
}

// LoadGame returns the stored record for id.
func (db *DB) LoadGame(ctx context.Context, id string) (game.Record, error) {
	var (
		doc     string
		version int64
	)
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT document, version FROM games WHERE id = ?`), id).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Record{}, &game.NotFoundError{ID: id}
	}
	if err != nil {
		return game.Record{}, fmt.Errorf("failed to load game %s: %w", id, err)
	}
	return decodeGame(id, doc, version)
}

// DeleteGame removes the game with id.
func (db *DB) DeleteGame(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM games WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", id, err)
	}
	if n == 0 {
		return &game.NotFoundError{ID: id}
	}
	return nil
}

// ListGames returns the games of one player, oldest first.
func (db *DB) ListGames(ctx context.Context, playerID int64) ([]game.Record, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(
		`SELECT id, document, version FROM games WHERE player_id = ? ORDER BY created_at ASC, id ASC`), playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var records []game.Record
	for rows.Next() {
		var (
			id, doc string
			version int64
		)
		if err := rows.Scan(&id, &doc, &version); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		r, err := decodeGame(id, doc, version)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read games: %w", err)
	}
	return records, nil
}
