package player

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// Store persists players. Implementations must make AddPoints atomic with
// respect to concurrent calls for the same id and must enforce unique names.
type Store interface {
	CreatePlayer(ctx context.Context, name string) (Player, error)
	FindOrCreatePlayer(ctx context.Context, name string) (Player, error)
	GetPlayer(ctx context.Context, id int64) (Player, error)
	GetPlayerByName(ctx context.Context, name string) (Player, error)
	RenamePlayer(ctx context.Context, id int64, name string) (Player, error)
	AddPoints(ctx context.Context, id int64, delta int) (Player, error)
	Ranking(ctx context.Context) ([]Player, error)
}

// Service validates input and delegates to a Store.
type Service struct {
	store  Store
	logger *log.Logger
}

// NewService creates a player service backed by store.
func NewService(store Store, logger *log.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithPrefix("players"),
	}
}

// NormalizeName trims a player name and rejects blank ones.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// Create registers a new player with zero points.
func (s *Service) Create(ctx context.Context, name string) (Player, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Player{}, err
	}

	p, err := s.store.CreatePlayer(ctx, name)
	if err != nil {
		return Player{}, fmt.Errorf("create player %q: %w", name, err)
	}
	s.logger.Info("Player created", "id", p.ID, "name", p.Name)
	return p, nil
}

// CreateOrFetch returns the player with name, creating it when missing.
func (s *Service) CreateOrFetch(ctx context.Context, name string) (Player, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Player{}, err
	}

	p, err := s.store.FindOrCreatePlayer(ctx, name)
	if err != nil {
		return Player{}, fmt.Errorf("fetch player %q: %w", name, err)
	}
	return p, nil
}

// Get looks a player up by id.
func (s *Service) Get(ctx context.Context, id int64) (Player, error) {
	return s.store.GetPlayer(ctx, id)
}

// Rename changes a player's name, keeping names unique.
func (s *Service) Rename(ctx context.Context, id int64, name string) (Player, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Player{}, err
	}

	p, err := s.store.RenamePlayer(ctx, id, name)
	if err != nil {
		return Player{}, fmt.Errorf("rename player %d: %w", id, err)
	}
	s.logger.Info("Player renamed", "id", id, "name", name)
	return p, nil
}

// IncrementPoints atomically adds delta to the player's total.
func (s *Service) IncrementPoints(ctx context.Context, id int64, delta int) (Player, error) {
	p, err := s.store.AddPoints(ctx, id, delta)
	if err != nil {
		return Player{}, fmt.Errorf("add %d points to player %d: %w", delta, id, err)
	}
	s.logger.Debug("Points applied", "id", id, "delta", delta, "total", p.TotalPoints)
	return p, nil
}

// Ranking lists players by total points, highest first.
func (s *Service) Ranking(ctx context.Context) ([]Player, error) {
	return s.store.Ranking(ctx)
}
