package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/hand"
)

// DealerStandsOn is the total at which the dealer stops drawing.
const DealerStandsOn = 17

// Game is one blackjack session. The zero value is not usable; see New.
type Game struct {
	id       string
	playerID int64

	player hand.Hand
	dealer hand.Hand
	hidden *deck.Card
	deck   *deck.Deck

	status Status
	winner Participant

	createdAt time.Time
	updatedAt time.Time

	// version is the stored revision this game was loaded from.
	version int64
}

// New deals a game from d: two cards to the player, then one visible and one
// hidden card to the dealer. The game keeps its own copy of d.
func New(id string, playerID int64, d *deck.Deck, now time.Time) (*Game, error) {
	if d.Len() < 4 {
		return nil, fmt.Errorf("deal game %s: %d cards left: %w", id, d.Len(), deck.ErrExhausted)
	}

	g := &Game{
		id:        id,
		playerID:  playerID,
		deck:      deck.FromCards(d.Cards()...),
		status:    Active,
		winner:    None,
		createdAt: now,
		updatedAt: now,
	}

	// Length was checked above, so these draws cannot fail.
	p1, _ := g.deck.Draw()
	p2, _ := g.deck.Draw()
	up, _ := g.deck.Draw()
	hole, _ := g.deck.Draw()

	g.player = hand.Hand{p1, p2}
	g.dealer = hand.Hand{up}
	g.hidden = &hole
	return g, nil
}

// Hit draws a card for the player. When the card busts the player the game
// finishes and the returned outcome must be applied to the player's points.
// An empty deck returns deck.ErrExhausted and leaves the game unchanged.
// Hitting a finished game does nothing.
func (g *Game) Hit() (*Outcome, error) {
	if g.status != Active {
		return nil, nil
	}

	card, err := g.deck.Draw()
	if err != nil {
		return nil, fmt.Errorf("hit game %s: %w", g.id, err)
	}
	g.player = append(g.player, card)

	if g.player.IsBust() {
		g.reveal()
		o := g.finish()
		return &o, nil
	}
	return nil, nil
}

// Stand reveals the hidden card, plays the dealer's turn and settles. It
// returns nil when the game had already finished.
func (g *Game) Stand() *Outcome {
	if g.status != Active {
		return nil
	}

	g.reveal()
	g.playDealer()
	o := g.finish()
	return &o
}

// Result recomputes the outcome of a finished game from the final hands and
// re-marks the winner. The delta has already been applied when the game
// finished; callers must not apply it again.
func (g *Game) Result() (Outcome, bool) {
	o, ok := g.Outcome()
	if ok {
		g.winner = o.Winner
	}
	return o, ok
}

func (g *Game) reveal() {
	if g.hidden == nil {
		return
	}
	g.dealer = append(g.dealer, *g.hidden)
	g.hidden = nil
}

func (g *Game) playDealer() {
	for g.dealer.Score() < DealerStandsOn {
		card, err := g.deck.Draw()
		if errors.Is(err, deck.ErrExhausted) {
			return
		}
		g.dealer = append(g.dealer, card)
	}
}

func (g *Game) finish() Outcome {
	o := Settle(g.player.Score(), g.dealer.Score())
	g.status = Finished
	g.winner = o.Winner
	return o
}

// Touch records a modification time.
func (g *Game) Touch(now time.Time) {
	g.updatedAt = now
}

// ID returns the game's identifier.
func (g *Game) ID() string { return g.id }

// PlayerID returns the owning player's id.
func (g *Game) PlayerID() int64 { return g.playerID }

func (g *Game) Status() Status { return g.status }

func (g *Game) Winner() Participant { return g.winner }

func (g *Game) IsFinished() bool { return g.status == Finished }

// CardsRemaining returns the size of the undealt deck.
func (g *Game) CardsRemaining() int { return g.deck.Len() }

func (g *Game) CreatedAt() time.Time { return g.createdAt }

func (g *Game) UpdatedAt() time.Time { return g.updatedAt }

// PlayerHand returns a copy of the player's cards.
func (g *Game) PlayerHand() hand.Hand { return g.player.Clone() }

// DealerHand returns a copy of the dealer's visible cards.
func (g *Game) DealerHand() hand.Hand { return g.dealer.Clone() }

// HasHiddenCard reports whether the dealer's second card is still face down.
func (g *Game) HasHiddenCard() bool { return g.hidden != nil }

// Outcome reports the result of a finished game without modifying it.
func (g *Game) Outcome() (Outcome, bool) {
	if g.status != Finished {
		return Outcome{}, false
	}
	return Settle(g.player.Score(), g.dealer.Score()), true
}
