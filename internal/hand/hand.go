// Package hand scores blackjack hands.
package hand

import (
	"strings"

	"github.com/lox/blackjack/internal/deck"
)

// Blackjack is the best possible score; anything above it is a bust.
const Blackjack = 21

// Hand is an ordered collection of cards held by one party.
type Hand []deck.Card

// Score returns the best total for cards: every ace starts at eleven and is
// downgraded to one while the total exceeds 21. The result is the highest
// total not above 21 when one exists, otherwise the minimum total.
func Score(cards []deck.Card) int {
	total, _ := score(cards)
	return total
}

func score(cards []deck.Card) (total int, softAces int) {
	for _, c := range cards {
		total += c.Rank.SoftValue()
		if c.IsAce() {
			softAces++
		}
	}
	for total > Blackjack && softAces > 0 {
		total -= 10
		softAces--
	}
	return total, softAces
}

// Score returns the best total for the hand.
func (h Hand) Score() int {
	return Score(h)
}

// IsBust reports whether the hand is over 21.
func (h Hand) IsBust() bool {
	return h.Score() > Blackjack
}

// IsSoft reports whether the best total still counts an ace as eleven.
func (h Hand) IsSoft() bool {
	_, soft := score(h)
	return soft > 0
}

// Clone returns a copy that shares no storage with h.
func (h Hand) Clone() Hand {
	if h == nil {
		return Hand{}
	}
	return append(Hand{}, h...)
}

func (h Hand) String() string {
	parts := make([]string, len(h))
	for i, c := range h {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
