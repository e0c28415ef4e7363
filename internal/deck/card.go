package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

var suitNames = [...]string{"SPADES", "HEARTS", "DIAMONDS", "CLUBS"}

// Suits lists every suit in enumeration order.
func Suits() []Suit {
	return []Suit{Spades, Hearts, Diamonds, Clubs}
}

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

func (s Suit) valid() bool {
	return s >= Spades && s <= Clubs
}

// MarshalText encodes the suit as its enum name.
func (s Suit) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid suit %d", int(s))
	}
	return []byte(suitNames[s]), nil
}

// UnmarshalText decodes an enum name such as "SPADES".
func (s *Suit) UnmarshalText(text []byte) error {
	name := strings.ToUpper(string(text))
	for i, n := range suitNames {
		if n == name {
			*s = Suit(i)
			return nil
		}
	}
	return fmt.Errorf("invalid suit %q", string(text))
}

// Rank represents a card rank
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var rankNames = map[Rank]string{
	Two: "TWO", Three: "THREE", Four: "FOUR", Five: "FIVE", Six: "SIX",
	Seven: "SEVEN", Eight: "EIGHT", Nine: "NINE", Ten: "TEN",
	Jack: "JACK", Queen: "QUEEN", King: "KING", Ace: "ACE",
}

// Ranks lists every rank in enumeration order.
func Ranks() []Rank {
	ranks := make([]Rank, 0, 13)
	for r := Two; r <= Ace; r++ {
		ranks = append(ranks, r)
	}
	return ranks
}

// String returns the string representation of a rank
func (r Rank) String() string {
	switch {
	case r >= Two && r <= Nine:
		return fmt.Sprintf("%d", int(r))
	case r == Ten:
		return "T"
	case r == Jack:
		return "J"
	case r == Queen:
		return "Q"
	case r == King:
		return "K"
	case r == Ace:
		return "A"
	default:
		return "?"
	}
}

// HardValue is the blackjack value of the rank with aces counted as one.
func (r Rank) HardValue() int {
	switch {
	case r == Ace:
		return 1
	case r >= Ten:
		return 10
	default:
		return int(r)
	}
}

// SoftValue is the blackjack value of the rank with aces counted as eleven.
func (r Rank) SoftValue() int {
	if r == Ace {
		return 11
	}
	return r.HardValue()
}

// MarshalText encodes the rank as its enum name.
func (r Rank) MarshalText() ([]byte, error) {
	name, ok := rankNames[r]
	if !ok {
		return nil, fmt.Errorf("invalid rank %d", int(r))
	}
	return []byte(name), nil
}

// UnmarshalText decodes an enum name such as "ACE".
func (r *Rank) UnmarshalText(text []byte) error {
	name := strings.ToUpper(string(text))
	for rank, n := range rankNames {
		if n == name {
			*r = rank
			return nil
		}
	}
	return fmt.Errorf("invalid rank %q", string(text))
}

// Card represents a playing card
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// String returns the string representation of a card (e.g., "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// IsRed returns true if the card is red
func (c Card) IsRed() bool {
	return c.Suit.IsRed()
}

// IsAce returns true if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// IsFaceCard returns true if the card is a face card (J, Q, K)
func (c Card) IsFaceCard() bool {
	return c.Rank >= Jack && c.Rank <= King
}
