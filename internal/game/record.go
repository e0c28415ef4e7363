package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/hand"
)

// ErrCorruptRecord is returned when a stored game violates its invariants.
var ErrCorruptRecord = errors.New("corrupt game record")

// Record is the persisted form of a game.
type Record struct {
	ID          string      `json:"id"`
	PlayerID    int64       `json:"playerId"`
	PlayerCards []deck.Card `json:"playerCards"`
	DealerCards []deck.Card `json:"dealerCards"`
	HiddenCard  *deck.Card  `json:"hiddenCard"`
	Deck        []deck.Card `json:"deck"`
	Status      Status      `json:"status"`
	Winner      Participant `json:"winner"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`

	// Version is the stored revision. Stores accept a save only when it
	// matches the revision they hold, and bump it on success. New games
	// start at zero.
	Version int64 `json:"version"`
}

// Record returns a copy of the full game state for storage.
func (g *Game) Record() Record {
	r := Record{
		ID:          g.id,
		PlayerID:    g.playerID,
		PlayerCards: g.player.Clone(),
		DealerCards: g.dealer.Clone(),
		Deck:        g.deck.Cards(),
		Status:      g.status,
		Winner:      g.winner,
		CreatedAt:   g.createdAt,
		UpdatedAt:   g.updatedAt,
		Version:     g.version,
	}
	if r.Deck == nil {
		r.Deck = []deck.Card{}
	}
	if g.hidden != nil {
		hidden := *g.hidden
		r.HiddenCard = &hidden
	}
	return r
}

// FromRecord rebuilds a game from storage, checking lifecycle invariants.
func FromRecord(r Record) (*Game, error) {
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("%w: game %s: %v", ErrCorruptRecord, r.ID, err)
	}

	g := &Game{
		id:        r.ID,
		playerID:  r.PlayerID,
		player:    hand.Hand(r.PlayerCards).Clone(),
		dealer:    hand.Hand(r.DealerCards).Clone(),
		deck:      deck.FromCards(r.Deck...),
		status:    r.Status,
		winner:    r.Winner,
		createdAt: r.CreatedAt,
		updatedAt: r.UpdatedAt,
		version:   r.Version,
	}
	if r.HiddenCard != nil {
		hidden := *r.HiddenCard
		g.hidden = &hidden
	}
	return g, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	c.PlayerCards = append([]deck.Card{}, r.PlayerCards...)
	c.DealerCards = append([]deck.Card{}, r.DealerCards...)
	c.Deck = append([]deck.Card{}, r.Deck...)
	if r.HiddenCard != nil {
		hidden := *r.HiddenCard
		c.HiddenCard = &hidden
	}
	return c
}

func (r Record) validate() error {
	if r.ID == "" {
		return errors.New("missing id")
	}
	switch r.Status {
	case Active:
		if r.Winner != None {
			return fmt.Errorf("active game has winner %s", r.Winner)
		}
		if r.HiddenCard == nil {
			return errors.New("active game without hidden card")
		}
		if len(r.DealerCards) != 1 {
			return fmt.Errorf("active game shows %d dealer cards", len(r.DealerCards))
		}
	case Finished:
		if r.HiddenCard != nil {
			return errors.New("finished game with hidden card")
		}
	default:
		return fmt.Errorf("unknown status %d", int(r.Status))
	}
	return nil
}

// Snapshot is the public view of a game. The hidden card and the remaining
// deck are never part of it.
type Snapshot struct {
	ID             string      `json:"id"`
	PlayerID       int64       `json:"playerId"`
	PlayerCards    hand.Hand   `json:"playerCards"`
	DealerCards    hand.Hand   `json:"dealerCards"`
	PlayerScore    int         `json:"playerScore"`
	DealerScore    int         `json:"dealerScore"`
	Status         Status      `json:"gameStatus"`
	Winner         Participant `json:"winner"`
	CardsRemaining int         `json:"cardsRemaining"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Snapshot returns a read-only copy of the visible game state.
func (g *Game) Snapshot() Snapshot {
	return Snapshot{
		ID:             g.id,
		PlayerID:       g.playerID,
		PlayerCards:    g.player.Clone(),
		DealerCards:    g.dealer.Clone(),
		PlayerScore:    g.player.Score(),
		DealerScore:    g.dealer.Score(),
		Status:         g.status,
		Winner:         g.winner,
		CardsRemaining: g.deck.Len(),
		CreatedAt:      g.createdAt,
		UpdatedAt:      g.updatedAt,
	}
}
