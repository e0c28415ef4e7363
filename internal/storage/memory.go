package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
)

// Memory is a process-local backend. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	players map[int64]player.Player
	byName  map[string]int64
	games   map[string]game.Record
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		players: make(map[int64]player.Player),
		byName:  make(map[string]int64),
		games:   make(map[string]game.Record),
	}
}

func (m *Memory) insertLocked(name string) player.Player {
	m.nextID++
	p := player.Player{ID: m.nextID, Name: name}
	m.players[p.ID] = p
	m.byName[name] = p.ID
	return p
}

func (m *Memory) CreatePlayer(_ context.Context, name string) (player.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[name]; exists {
		return player.Player{}, player.ErrAlreadyExists
	}
	return m.insertLocked(name), nil
}

func (m *Memory) FindOrCreatePlayer(_ context.Context, name string) (player.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, exists := m.byName[name]; exists {
		return m.players[id], nil
	}
	return m.insertLocked(name), nil
}

func (m *Memory) GetPlayer(_ context.Context, id int64) (player.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.players[id]
	if !ok {
		return player.Player{}, player.NotFoundByID(id)
	}
	return p, nil
}

func (m *Memory) GetPlayerByName(_ context.Context, name string) (player.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return player.Player{}, player.NotFoundByName(name)
	}
	return m.players[id], nil
}

func (m *Memory) RenamePlayer(_ context.Context, id int64, name string) (player.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok {
		return player.Player{}, player.NotFoundByID(id)
	}
	if p.Name == name {
		return p, nil
	}
	if _, taken := m.byName[name]; taken {
		return player.Player{}, player.ErrAlreadyExists
	}

	delete(m.byName, p.Name)
	p.Name = name
	m.players[id] = p
	m.byName[name] = id
	return p, nil
}

func (m *Memory) AddPoints(_ context.Context, id int64, delta int) (player.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok {
		return player.Player{}, player.NotFoundByID(id)
	}
	p.TotalPoints += delta
	m.players[id] = p
	return p, nil
}

func (m *Memory) Ranking(_ context.Context) ([]player.Player, error) {
	m.mu.RLock()
	players := make([]player.Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.RUnlock()

	sortRanking(players)
	return players, nil
}

func (m *Memory) SaveGame(_ context.Context, r game.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saveGameLocked(r)
}

func (m *Memory) saveGameLocked(r game.Record) error {
	current, exists := m.games[r.ID]
	switch {
	case !exists && r.Version != 0:
		return &game.NotFoundError{ID: r.ID}
	case exists && current.Version != r.Version:
		return game.Conflict(r.ID, r.Version)
	}

	stored := r.Clone()
	stored.Version++
	m.games[r.ID] = stored
	return nil
}

// SettleGame saves a finished game and applies its points under one lock.
func (m *Memory) SettleGame(_ context.Context, r game.Record, delta int) (player.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[r.PlayerID]
	if !ok {
		return player.Player{}, player.NotFoundByID(r.PlayerID)
	}
	if err := m.saveGameLocked(r); err != nil {
		return player.Player{}, err
	}
	p.TotalPoints += delta
	m.players[p.ID] = p
	return p, nil
}

func (m *Memory) LoadGame(_ context.Context, id string) (game.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.games[id]
	if !ok {
		return game.Record{}, &game.NotFoundError{ID: id}
	}
	return r.Clone(), nil
}

func (m *Memory) DeleteGame(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.games[id]; !ok {
		return &game.NotFoundError{ID: id}
	}
	delete(m.games, id)
	return nil
}

func (m *Memory) ListGames(_ context.Context, playerID int64) ([]game.Record, error) {
	m.mu.RLock()
	var records []game.Record
	for _, r := range m.games {
		if r.PlayerID == playerID {
			records = append(records, r.Clone())
		}
	}
	m.mu.RUnlock()

	sortGames(records)
	return records, nil
}

func (m *Memory) Close() error {
	return nil
}

func sortRanking(players []player.Player) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].TotalPoints != players[j].TotalPoints {
			return players[i].TotalPoints > players[j].TotalPoints
		}
		return players[i].ID < players[j].ID
	})
}

func sortGames(records []game.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
