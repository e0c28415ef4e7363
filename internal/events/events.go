// Package events carries game lifecycle notifications to interested
// parties: websocket watchers, other server instances over Redis, tests.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Type names a lifecycle event.
type Type string

const (
	GameCreated  Type = "game_created"
	GameUpdated  Type = "game_updated"
	GameFinished Type = "game_finished"
	GameDeleted  Type = "game_deleted"
)

// Event describes one change to a game.
type Event struct {
	Type     Type      `json:"type"`
	GameID   string    `json:"gameId"`
	PlayerID int64     `json:"playerId"`
	Status   string    `json:"status,omitempty"`
	Winner   string    `json:"winner,omitempty"`
	Delta    int       `json:"delta,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several publishers, returning the first error
// after trying all of them.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// PublishLogged publishes e and logs a failure instead of returning it.
func PublishLogged(ctx context.Context, p Publisher, logger *log.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("Event publish failed", "type", e.Type, "game", e.GameID, "error", err)
	}
}
