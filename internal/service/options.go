package service

import (
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/events"
)

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for game timestamps.
func WithClock(clock quartz.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithDeckSource sets where new games get their decks.
func WithDeckSource(decks DeckSource) Option {
	return func(s *Service) {
		s.decks = decks
	}
}

// WithPublisher sets the destination of game events.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithIDGenerator sets how game ids are minted.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) {
		s.ids = ids
	}
}
