package deck

import (
	"errors"
	rand "math/rand/v2"
)

// ErrExhausted is returned when drawing from a deck with no cards left.
var ErrExhausted = errors.New("deck exhausted")

// Size is the number of cards in a standard deck.
const Size = 52

// Deck is an ordered pile of cards drawn from the top (index 0).
type Deck struct {
	cards []Card
}

// New creates a standard 52-card deck in enumeration order, unshuffled.
func New() *Deck {
	d := &Deck{cards: make([]Card, 0, Size)}
	for _, suit := range Suits() {
		for _, rank := range Ranks() {
			d.cards = append(d.cards, NewCard(suit, rank))
		}
	}
	return d
}

// FromCards creates a deck holding exactly the given cards, top first.
func FromCards(cards ...Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

// NewShuffled creates a standard deck shuffled with rng.
func NewShuffled(rng *rand.Rand) *Deck {
	d := New()
	d.Shuffle(rng)
	return d
}

// Shuffle permutes the remaining cards uniformly using rng.
func (d *Deck) Shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrExhausted
	}

	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, nil
}

// Len returns the number of cards left in the deck
func (d *Deck) Len() int {
	return len(d.cards)
}

// IsEmpty returns true if the deck has no cards left
func (d *Deck) IsEmpty() bool {
	return len(d.cards) == 0
}

// Cards returns a copy of the remaining cards, top first.
func (d *Deck) Cards() []Card {
	return append([]Card(nil), d.cards...)
}

// Peek returns the top card without removing it from the deck
func (d *Deck) Peek() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	return d.cards[0], true
}
