package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/player"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// newStacked deals a game from cards in order: player, player, dealer up,
// dealer hidden, then the draw pile.
func newStacked(t *testing.T, cards string) *Game {
	t.Helper()
	g, err := New("g1", 7, deck.FromCards(deck.MustParseCards(cards)...), testNow)
	require.NoError(t, err)
	return g
}

func TestNewDealsInitialHands(t *testing.T) {
	g, err := New("g1", 7, deck.New(), testNow)
	require.NoError(t, err)

	assert.Equal(t, "g1", g.ID())
	assert.Equal(t, int64(7), g.PlayerID())
	assert.Len(t, g.PlayerHand(), 2)
	assert.Len(t, g.DealerHand(), 1)
	assert.True(t, g.HasHiddenCard())
	assert.Equal(t, Active, g.Status())
	assert.Equal(t, None, g.Winner())
	assert.Equal(t, deck.Size-4, g.CardsRemaining())
	assert.Equal(t, testNow, g.CreatedAt())
}

func TestNewKeepsOwnDeck(t *testing.T) {
	d := deck.New()
	g, err := New("g1", 7, d, testNow)
	require.NoError(t, err)

	assert.Equal(t, deck.Size, d.Len(), "caller's deck was consumed")
	_, _ = d.Draw()
	assert.Equal(t, deck.Size-4, g.CardsRemaining())
}

func TestNewNeedsFourCards(t *testing.T) {
	_, err := New("g1", 7, deck.FromCards(deck.MustParseCards("AsKsQs")...), testNow)
	assert.ErrorIs(t, err, deck.ErrExhausted)
}

func TestHitWithoutBust(t *testing.T) {
	g := newStacked(t, "2s 3h 9d 7c 4s 5h")

	outcome, err := g.Hit()
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, Active, g.Status())
	assert.Equal(t, 9, g.PlayerHand().Score())
	assert.Len(t, g.DealerHand(), 1)
	assert.Equal(t, 1, g.CardsRemaining())
}

func TestHitBustFinishesWithoutDealerTurn(t *testing.T) {
	g := newStacked(t, "Ts 5h 9d 7c Kc 2d")

	outcome, err := g.Hit()
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, Outcome{Winner: Dealer, PlayerStatus: player.StatusLost, Delta: -2}, *outcome)
	assert.Equal(t, Finished, g.Status())
	assert.Equal(t, Dealer, g.Winner())
	assert.Equal(t, 25, g.PlayerHand().Score())

	// The hidden card is shown but the dealer draws nothing.
	assert.False(t, g.HasHiddenCard())
	assert.Equal(t, deck.MustParseCards("9d7c"), []deck.Card(g.DealerHand()))
	assert.Equal(t, 1, g.CardsRemaining())
}

func TestHitOnExhaustedDeckKeepsGameActive(t *testing.T) {
	g := newStacked(t, "Ts 5h 9d 7c")

	outcome, err := g.Hit()
	assert.ErrorIs(t, err, deck.ErrExhausted)
	assert.Nil(t, outcome)
	assert.Equal(t, Active, g.Status())
	assert.Len(t, g.PlayerHand(), 2)
	assert.True(t, g.HasHiddenCard())

	_, err = g.Hit()
	assert.ErrorIs(t, err, deck.ErrExhausted)

	// Only standing can end the game now; the dealer stops on the empty deck.
	outcome = g.Stand()
	require.NotNil(t, outcome)
	assert.Equal(t, Finished, g.Status())
	assert.Equal(t, 16, g.DealerHand().Score())
	assert.Equal(t, Dealer, outcome.Winner)
}

func TestStandDealerOnEighteenDrawsNothing(t *testing.T) {
	g := newStacked(t, "Ts 9h Td 8c 5s")

	outcome := g.Stand()
	require.NotNil(t, outcome)

	assert.Equal(t, deck.MustParseCards("Td8c"), []deck.Card(g.DealerHand()))
	assert.Equal(t, 1, g.CardsRemaining())
	assert.Equal(t, Outcome{Winner: Player, PlayerStatus: player.StatusWon, Delta: 2}, *outcome)
	assert.Equal(t, Finished, g.Status())
	assert.Equal(t, Player, g.Winner())
}

func TestStandDealerDrawsBelowSeventeen(t *testing.T) {
	g := newStacked(t, "Ts 8h 6d 5c 3s 4h 9c")

	outcome := g.Stand()
	require.NotNil(t, outcome)

	assert.Equal(t, deck.MustParseCards("6d5c3s4h"), []deck.Card(g.DealerHand()))
	assert.Equal(t, 18, g.DealerHand().Score())
	assert.Equal(t, 1, g.CardsRemaining())
	assert.Equal(t, None, outcome.Winner)
	assert.Equal(t, player.StatusTie, outcome.PlayerStatus)
	assert.Equal(t, 1, outcome.Delta)
}

func TestStandDealerStandsOnSoftSeventeen(t *testing.T) {
	g := newStacked(t, "Ts 6h As 6c 9d")

	outcome := g.Stand()
	require.NotNil(t, outcome)

	assert.Equal(t, 17, g.DealerHand().Score())
	assert.True(t, g.DealerHand().IsSoft())
	assert.Equal(t, 1, g.CardsRemaining())
	assert.Equal(t, Dealer, outcome.Winner)
}

func TestStandDealerBusts(t *testing.T) {
	g := newStacked(t, "Ts 7h Td 6c Kd")

	outcome := g.Stand()
	require.NotNil(t, outcome)

	assert.Equal(t, 26, g.DealerHand().Score())
	assert.Equal(t, Player, outcome.Winner)
	assert.Equal(t, player.StatusWon, outcome.PlayerStatus)
}

func TestStandDealerStopsWhenDeckRunsOut(t *testing.T) {
	g := newStacked(t, "Ts 7h 2d 3c 4s")

	outcome := g.Stand()
	require.NotNil(t, outcome)

	assert.Equal(t, 9, g.DealerHand().Score())
	assert.Equal(t, 0, g.CardsRemaining())
	assert.Equal(t, Finished, g.Status())
	assert.Equal(t, Player, outcome.Winner)
}

func TestTieOnTwenty(t *testing.T) {
	g := newStacked(t, "Ts Kh Qd Jc")

	outcome := g.Stand()
	require.NotNil(t, outcome)

	assert.Equal(t, 20, g.PlayerHand().Score())
	assert.Equal(t, 20, g.DealerHand().Score())
	assert.Equal(t, Outcome{Winner: None, PlayerStatus: player.StatusTie, Delta: 1}, *outcome)
	assert.Equal(t, None, g.Winner())
	assert.Equal(t, Finished, g.Status())
}

func TestFinishedGameIgnoresMoves(t *testing.T) {
	g := newStacked(t, "Ts 9h Td 8c 5s 4d")
	require.NotNil(t, g.Stand())
	before := g.Record()

	outcome, err := g.Hit()
	assert.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Nil(t, g.Stand())
	assert.Equal(t, before, g.Record())
}

func TestResultIsRepeatable(t *testing.T) {
	g := newStacked(t, "Ts 7h Td 8c")

	_, ok := g.Result()
	assert.False(t, ok, "active game has no result")

	first := g.Stand()
	require.NotNil(t, first)

	for i := 0; i < 2; i++ {
		o, ok := g.Result()
		require.True(t, ok)
		assert.Equal(t, *first, o)
		assert.Equal(t, Dealer, g.Winner())
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	g := newStacked(t, "Ts 9h Td 8c 5s")

	h := g.PlayerHand()
	h[0] = deck.NewCard(deck.Clubs, deck.Two)
	snap := g.Snapshot()
	snap.DealerCards[0] = deck.NewCard(deck.Clubs, deck.Two)
	rec := g.Record()
	rec.Deck[0] = deck.NewCard(deck.Clubs, deck.Two)
	rec.HiddenCard.Rank = deck.Two

	assert.Equal(t, 19, g.PlayerHand().Score())
	assert.Equal(t, 10, g.DealerHand().Score())
	assert.Equal(t, deck.MustParseCards("5s"), g.Record().Deck)
	assert.Equal(t, deck.NewCard(deck.Clubs, deck.Eight), *g.Record().HiddenCard)
}

func TestSnapshotHidesConcealedState(t *testing.T) {
	g := newStacked(t, "As 9h Td 8c 5s")
	snap := g.Snapshot()

	assert.Equal(t, 20, snap.PlayerScore)
	assert.Equal(t, 10, snap.DealerScore)
	assert.Len(t, snap.DealerCards, 1)
	assert.Equal(t, 1, snap.CardsRemaining)
	assert.Equal(t, Active, snap.Status)
}

func TestRecordRoundTrip(t *testing.T) {
	g := newStacked(t, "Ts 5h 9d 7c 2s 3s")
	_, err := g.Hit()
	require.NoError(t, err)

	restored, err := FromRecord(g.Record())
	require.NoError(t, err)
	assert.Equal(t, g.Record(), restored.Record())

	r := g.Record()
	r.Version = 4
	stored, err := FromRecord(r)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Record().Version, "revision survives a reload")

	// The restored game keeps playing from the same deck.
	outcome := restored.Stand()
	require.NotNil(t, outcome)
	assert.Equal(t, 19, restored.DealerHand().Score())
}

func TestFromRecordRejectsBrokenInvariants(t *testing.T) {
	valid := newStacked(t, "Ts 5h 9d 7c").Record()

	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"missing id", func(r *Record) { r.ID = "" }},
		{"active with winner", func(r *Record) { r.Winner = Player }},
		{"active without hidden card", func(r *Record) { r.HiddenCard = nil }},
		{"active with two dealer cards", func(r *Record) { r.DealerCards = append(r.DealerCards, *r.HiddenCard) }},
		{"finished with hidden card", func(r *Record) { r.Status = Finished }},
		{"unknown status", func(r *Record) { r.Status = Status(9) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.DealerCards = append([]deck.Card(nil), valid.DealerCards...)
			tt.mutate(&r)
			_, err := FromRecord(r)
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}
