package service

import (
	rand "math/rand/v2"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/randutil"
)

// DeckSource supplies the deck each new game is dealt from.
type DeckSource interface {
	NewDeck() *deck.Deck
}

// DeckFunc adapts a function to DeckSource.
type DeckFunc func() *deck.Deck

func (f DeckFunc) NewDeck() *deck.Deck { return f() }

// ShuffledDecks deals freshly shuffled 52-card decks from one seeded source.
type ShuffledDecks struct {
	rng *randutil.Locked
}

// NewShuffledDecks seeds a deck source. Equal seeds deal equal sequences
// of decks.
func NewShuffledDecks(seed int64) *ShuffledDecks {
	return &ShuffledDecks{rng: randutil.NewLocked(seed)}
}

func (s *ShuffledDecks) NewDeck() *deck.Deck {
	var d *deck.Deck
	s.rng.With(func(r *rand.Rand) {
		d = deck.NewShuffled(r)
	})
	return d
}

// StackedDeck always deals the given cards, top first.
func StackedDeck(cards ...deck.Card) DeckSource {
	return DeckFunc(func() *deck.Deck {
		return deck.FromCards(cards...)
	})
}
