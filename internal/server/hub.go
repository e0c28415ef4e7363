package server

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/events"
)

// Hub tracks websocket connections by the game they watch and forwards
// game events to them. It implements events.Publisher.
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]map[*Connection]struct{}
	clock    quartz.Clock
	logger   *log.Logger
}

var _ events.Publisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *log.Logger, clock quartz.Clock) *Hub {
	return &Hub{
		watchers: make(map[string]map[*Connection]struct{}),
		clock:    clock,
		logger:   logger.WithPrefix("hub"),
	}
}

func (h *Hub) add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.watchers[c.gameID]
	if !ok {
		conns = make(map[*Connection]struct{})
		h.watchers[c.gameID] = conns
	}
	conns[c] = struct{}{}
	h.logger.Debug("Watcher joined", "game", c.gameID, "watchers", len(conns))
}

func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.watchers[c.gameID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.watchers, c.gameID)
	}
	h.logger.Debug("Watcher left", "game", c.gameID, "watchers", len(conns))
}

// Watchers returns how many connections watch gameID.
func (h *Hub) Watchers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[gameID])
}

// Publish sends e to every connection watching its game.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	msg, err := NewMessage(MessageTypeGameEvent, e, h.clock.Now())
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.watchers[e.GameID]))
	for c := range h.watchers[e.GameID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.SendMessage(msg); err != nil {
			h.logger.Debug("Dropping event for closed watcher", "game", e.GameID, "error", err)
		}
	}
	return nil
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var conns []*Connection
	for _, set := range h.watchers {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close() // Ignore close errors during shutdown
	}
}
