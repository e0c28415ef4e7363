package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lox/blackjack/internal/player"
)

const playerColumns = "id, name, total_points"

func scanPlayer(row interface{ Scan(...any) error }) (player.Player, error) {
	var p player.Player
	err := row.Scan(&p.ID, &p.Name, &p.TotalPoints)
	return p, err
}

// CreatePlayer inserts a player with zero points.
func (db *DB) CreatePlayer(ctx context.Context, name string) (player.Player, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(
		`INSERT INTO players (name, total_points) VALUES (?, 0)
		 ON CONFLICT(name) DO NOTHING
		 RETURNING `+playerColumns), name)

	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Player{}, player.ErrAlreadyExists
	}
	if err != nil {
		return player.Player{}, fmt.Errorf("failed to insert player: %w", err)
	}
	return p, nil
}

// FindOrCreatePlayer returns the player named name, inserting it if needed.
func (db *DB) FindOrCreatePlayer(ctx context.Context, name string) (player.Player, error) {
	if _, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO players (name, total_points) VALUES (?, 0)
		 ON CONFLICT(name) DO NOTHING`), name); err != nil {
		return player.Player{}, fmt.Errorf("failed to insert player: %w", err)
	}
	return db.GetPlayerByName(ctx, name)
}

// GetPlayer looks a player up by id.
func (db *DB) GetPlayer(ctx context.Context, id int64) (player.Player, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+playerColumns+` FROM players WHERE id = ?`), id)

	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Player{}, player.NotFoundByID(id)
	}
	if err != nil {
		return player.Player{}, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// GetPlayerByName looks a player up by its unique name.
func (db *DB) GetPlayerByName(ctx context.Context, name string) (player.Player, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT `+playerColumns+` FROM players WHERE name = ?`), name)

	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Player{}, player.NotFoundByName(name)
	}
	if err != nil {
		return player.Player{}, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// RenamePlayer changes a player's name.
func (db *DB) RenamePlayer(ctx context.Context, id int64, name string) (player.Player, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(
		`UPDATE players SET name = ? WHERE id = ? RETURNING `+playerColumns), name, id)

	p, err := scanPlayer(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return player.Player{}, player.NotFoundByID(id)
	case isUniqueViolation(err):
		return player.Player{}, player.ErrAlreadyExists
	case err != nil:
		return player.Player{}, fmt.Errorf("failed to rename player: %w", err)
	}
	return p, nil
}

// AddPoints adds delta to the player's total in a single statement.
func (db *DB) AddPoints(ctx context.Context, id int64, delta int) (player.Player, error) {
	return db.addPoints(ctx, db.conn, id, delta)
}

func (db *DB) addPoints(ctx context.Context, q queryer, id int64, delta int) (player.Player, error) {
	row := q.QueryRowContext(ctx, db.rebind(
		`UPDATE players SET total_points = total_points + ? WHERE id = ?
		 RETURNING `+playerColumns), delta, id)

	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Player{}, player.NotFoundByID(id)
	}
	if err != nil {
		return player.Player{}, fmt.Errorf("failed to add points: %w", err)
	}
	return p, nil
}

// Ranking lists players by total points, highest first.
func (db *DB) Ranking(ctx context.Context) ([]player.Player, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players ORDER BY total_points DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking: %w", err)
	}
	defer rows.Close()

	var players []player.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ranking: %w", err)
	}
	return players, nil
}
