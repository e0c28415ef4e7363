package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/events"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
	"github.com/lox/blackjack/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	svc     *Service
	players *player.Service
	store   *storage.Memory
	events  *events.Recorder
	clock   *quartz.Mock
}

func newFixture(t *testing.T, decks DeckSource) *fixture {
	t.Helper()

	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	store := storage.NewMemory()
	players := player.NewService(store, logger)
	rec := &events.Recorder{}
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	return &fixture{
		svc: New(logger, players, store,
			WithDeckSource(decks),
			WithPublisher(rec),
			WithClock(clock)),
		players: players,
		store:   store,
		events:  rec,
		clock:   clock,
	}
}

func stacked(cards string) DeckSource {
	return StackedDeck(deck.MustParseCards(cards)...)
}

func twos(n int) DeckSource {
	return stacked(strings.Repeat("2s ", n))
}

func (f *fixture) points(t *testing.T, name string) int {
	t.Helper()
	p, err := f.players.CreateOrFetch(context.Background(), name)
	require.NoError(t, err)
	return p.TotalPoints
}

func TestCreateGameDealsOpeningHands(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(42))

	res, err := f.svc.CreateGame(context.Background(), "alice")
	require.NoError(t, err)

	assert.Len(t, res.PlayerCards, 2)
	assert.Len(t, res.DealerCards, 1)
	assert.Equal(t, game.Active, res.Status)
	assert.Equal(t, game.None, res.Winner)
	assert.Equal(t, deck.Size-4, res.CardsRemaining)
	assert.Equal(t, "alice", res.Player.Name)
	assert.Equal(t, player.StatusUnset, res.Player.Status)
	assert.Equal(t, f.clock.Now(), res.CreatedAt)
	assert.Equal(t, []events.Type{events.GameCreated}, f.events.Types())
}

func TestCreateGameReusesPlayer(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(1))
	ctx := context.Background()

	first, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	second, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, first.Player.ID, second.Player.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateGameRejectsBlankName(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(1))

	_, err := f.svc.CreateGame(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestShuffledDecksAreReproducible(t *testing.T) {
	a, b := NewShuffledDecks(7), NewShuffledDecks(7)
	for i := 0; i < 3; i++ {
		assert.Equal(t, a.NewDeck().Cards(), b.NewDeck().Cards())
	}
}

func TestHitUntilBustLosesTwoPoints(t *testing.T) {
	f := newFixture(t, twos(15))
	ctx := context.Background()

	p, err := f.players.CreateOrFetch(ctx, "alice")
	require.NoError(t, err)
	_, err = f.players.IncrementPoints(ctx, p.ID, 5)
	require.NoError(t, err)

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	for i := 0; i < 20 && res.Status == game.Active; i++ {
		res, err = f.svc.ApplyMove(ctx, res.ID, game.Hit)
		require.NoError(t, err)
	}

	assert.Equal(t, game.Finished, res.Status)
	assert.Equal(t, game.Dealer, res.Winner)
	assert.Equal(t, player.StatusLost, res.Player.Status)
	assert.Equal(t, 22, res.PlayerScore)
	assert.Len(t, res.DealerCards, 2, "hidden card revealed, no dealer draws")
	assert.Equal(t, 3, f.points(t, "alice"))
}

func TestHitOnExhaustedDeckKeepsGameActive(t *testing.T) {
	f := newFixture(t, twos(11))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		res, err = f.svc.ApplyMove(ctx, res.ID, game.Hit)
		require.NoError(t, err)
	}
	require.Equal(t, 18, res.PlayerScore)
	require.Zero(t, res.CardsRemaining)

	_, err = f.svc.ApplyMove(ctx, res.ID, game.Hit)
	require.ErrorIs(t, err, deck.ErrExhausted)

	got, err := f.svc.GetGame(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Active, got.Status)
	assert.Len(t, got.PlayerCards, 9)
	assert.Zero(t, f.points(t, "alice"))

	// the dealer cannot draw either and stands on 4
	res, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)
	assert.Equal(t, game.Finished, res.Status)
	assert.Equal(t, 4, res.DealerScore)
	assert.Equal(t, game.Player, res.Winner)
	assert.Equal(t, 2, f.points(t, "alice"))
}

func TestStandDealerOnEighteenDrawsNothing(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c 5s"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	res, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)

	assert.Len(t, res.DealerCards, 2)
	assert.Equal(t, 18, res.DealerScore)
	assert.Equal(t, 19, res.PlayerScore)
	assert.Equal(t, 1, res.CardsRemaining)
	assert.Equal(t, game.Player, res.Winner)
	assert.Equal(t, player.StatusWon, res.Player.Status)
	assert.Equal(t, 2, res.Player.TotalPoints)
}

func TestTieOnTwentyAddsOnePoint(t *testing.T) {
	f := newFixture(t, stacked("Ts Qh Kd Jc"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	res, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)

	assert.Equal(t, game.None, res.Winner)
	assert.Equal(t, player.StatusTie, res.Player.Status)
	assert.Equal(t, 1, f.points(t, "alice"))
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	_, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)

	first, err := f.svc.Settle(ctx, res.ID)
	require.NoError(t, err)
	second, err := f.svc.Settle(ctx, res.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Winner, second.Winner)
	assert.Equal(t, player.StatusWon, second.Player.Status)
	assert.Equal(t, 2, f.points(t, "alice"))
}

func TestSettleActiveGameIsInProgress(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(3))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, res.ID)
	assert.ErrorIs(t, err, game.ErrInProgress)
}

func TestMovesOnFinishedGameChangeNothing(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c 5s 4s"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	finished, err := f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)

	for _, m := range []game.Move{game.Hit, game.Stand} {
		again, err := f.svc.ApplyMove(ctx, res.ID, m)
		require.NoError(t, err)
		assert.Equal(t, finished.PlayerCards, again.PlayerCards)
		assert.Equal(t, finished.CardsRemaining, again.CardsRemaining)
	}
	assert.Equal(t, 2, f.points(t, "alice"))
	assert.Equal(t, []events.Type{events.GameCreated, events.GameFinished}, f.events.Types())
}

func TestInvalidMove(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(3))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.ApplyMove(ctx, res.ID, game.Move("DOUBLE"))
	assert.ErrorIs(t, err, game.ErrInvalidMove)
}

func TestUnknownGame(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(3))
	ctx := context.Background()

	_, err := f.svc.GetGame(ctx, "missing")
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = f.svc.ApplyMove(ctx, "missing", game.Hit)
	assert.ErrorIs(t, err, game.ErrNotFound)
	_, err = f.svc.Settle(ctx, "missing")
	assert.ErrorIs(t, err, game.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteGame(ctx, "missing"), game.ErrNotFound)
}

func TestDeleteGame(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(3))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteGame(ctx, res.ID))

	_, err = f.svc.GetGame(ctx, res.ID)
	assert.ErrorIs(t, err, game.ErrNotFound)
	assert.Equal(t, []events.Type{events.GameCreated, events.GameDeleted}, f.events.Types())
}

func TestSettlementFailsLoudlyWhenPlayerMissing(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	// Point the stored game at a player that does not exist.
	r, err := f.store.LoadGame(ctx, res.ID)
	require.NoError(t, err)
	r.PlayerID = 999
	require.NoError(t, f.store.SaveGame(ctx, r))

	_, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.ErrorIs(t, err, player.ErrNotFound)

	stored, err := f.store.LoadGame(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Active, stored.Status)
	assert.NotNil(t, stored.HiddenCard)
	assert.Equal(t, 0, f.points(t, "alice"))
}

// cancellingStore cancels the caller's context as soon as the game is read,
// like a client hanging up mid request, and refuses writes on a cancelled
// context the way a SQL driver does.
type cancellingStore struct {
	*storage.Memory
	cancel context.CancelFunc
}

func (s cancellingStore) LoadGame(ctx context.Context, id string) (game.Record, error) {
	r, err := s.Memory.LoadGame(ctx, id)
	s.cancel()
	return r, err
}

func (s cancellingStore) SaveGame(ctx context.Context, r game.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.SaveGame(ctx, r)
}

func (s cancellingStore) SettleGame(ctx context.Context, r game.Record, delta int) (player.Player, error) {
	if err := ctx.Err(); err != nil {
		return player.Player{}, err
	}
	return s.Memory.SettleGame(ctx, r, delta)
}

func TestMoveCompletesAfterCallerHangsUp(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c"))

	res, err := f.svc.CreateGame(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.games = cancellingStore{Memory: f.store, cancel: cancel}

	res, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)
	assert.Equal(t, game.Finished, res.Status)
	assert.Equal(t, 2, f.points(t, "alice"))

	stored, err := f.store.LoadGame(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Finished, stored.Status)

	_, err = f.svc.ApplyMove(context.Background(), res.ID, game.Stand)
	require.NoError(t, err)
	assert.Equal(t, 2, f.points(t, "alice"), "points applied once")
}

// flakyStore has no SettleGame and fails the first saves of finished games.
type flakyStore struct {
	GameStore
	failures int
}

func (s *flakyStore) SaveGame(ctx context.Context, r game.Record) error {
	if r.Status == game.Finished && s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	return s.GameStore.SaveGame(ctx, r)
}

func TestFailedSaveAppliesNoPoints(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c"))
	ctx := context.Background()
	f.svc.games = &flakyStore{GameStore: f.store, failures: 1}

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.Error(t, err)
	assert.Equal(t, 0, f.points(t, "alice"))

	stored, err := f.store.LoadGame(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Active, stored.Status)

	res, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)
	assert.Equal(t, game.Finished, res.Status)
	assert.Equal(t, 2, f.points(t, "alice"))

	_, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)
	assert.Equal(t, 2, f.points(t, "alice"), "retrying a finished game adds nothing")
}

// racingStore lets another writer finish the game right after the first
// read, so the reader's copy is stale by the time it saves.
type racingStore struct {
	*storage.Memory
	raced bool
}

func (s *racingStore) LoadGame(ctx context.Context, id string) (game.Record, error) {
	r, err := s.Memory.LoadGame(ctx, id)
	if err != nil || s.raced {
		return r, err
	}
	s.raced = true

	other, err := game.FromRecord(r)
	if err != nil {
		return game.Record{}, err
	}
	o := other.Stand()
	if _, err := s.Memory.SettleGame(ctx, other.Record(), o.Delta); err != nil {
		return game.Record{}, err
	}
	return r, nil
}

func TestMoveReloadsAfterLosingRace(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	f.svc.games = &racingStore{Memory: f.store}

	res, err = f.svc.ApplyMove(ctx, res.ID, game.Stand)
	require.NoError(t, err)
	assert.Equal(t, game.Finished, res.Status)
	assert.Equal(t, player.StatusWon, res.Player.Status)
	assert.Equal(t, 2, f.points(t, "alice"), "only the winning writer applied points")
}

func TestPersistentConflictSurfaces(t *testing.T) {
	f := newFixture(t, stacked("2s 3h 9d 7c 4s 5h"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	f.svc.games = conflictingStore{GameStore: f.store}

	_, err = f.svc.ApplyMove(ctx, res.ID, game.Hit)
	assert.ErrorIs(t, err, game.ErrConflict)
}

type conflictingStore struct {
	GameStore
}

func (conflictingStore) SaveGame(_ context.Context, r game.Record) error {
	return game.Conflict(r.ID, r.Version)
}

func TestConcurrentStandsSettleOnce(t *testing.T) {
	f := newFixture(t, stacked("Ts 9h Td 8c"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := f.svc.ApplyMove(ctx, res.ID, game.Stand)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 2, f.points(t, "alice"))
	assert.Zero(t, f.svc.locks.size())
}

func TestConcurrentGamesForOnePlayerKeepEveryDelta(t *testing.T) {
	f := newFixture(t, stacked("Ts Qh Kd Jc"))
	ctx := context.Background()

	ids := make([]string, 10)
	for i := range ids {
		res, err := f.svc.CreateGame(ctx, "alice")
		require.NoError(t, err)
		ids[i] = res.ID
	}

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			_, err := f.svc.ApplyMove(ctx, id, game.Stand)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 10, f.points(t, "alice"))
}

func TestListGames(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(5))
	ctx := context.Background()

	first, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	_, err = f.svc.CreateGame(ctx, "bob")
	require.NoError(t, err)

	games, err := f.svc.ListGames(ctx, first.Player.ID)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, first.ID, games[0].ID)
	assert.Equal(t, second.ID, games[1].ID)

	_, err = f.svc.ListGames(ctx, 999)
	assert.ErrorIs(t, err, player.ErrNotFound)
}

func TestMoveUpdatesTimestamp(t *testing.T) {
	f := newFixture(t, stacked("2s 3h 9d 7c 4s 5h"))
	ctx := context.Background()

	res, err := f.svc.CreateGame(ctx, "alice")
	require.NoError(t, err)
	created := res.CreatedAt

	f.clock.Advance(time.Minute)
	res, err = f.svc.ApplyMove(ctx, res.ID, game.Hit)
	require.NoError(t, err)

	assert.Equal(t, created, res.CreatedAt)
	assert.Equal(t, created.Add(time.Minute), res.UpdatedAt)
	assert.Equal(t, game.Active, res.Status)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, NewShuffledDecks(1))
	f.svc.events = failingPublisher{}

	_, err := f.svc.CreateGame(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestKeyedMutexSerializesOneKey(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		k.Lock("a")()
	}()

	otherUnlock := k.Lock("b")
	otherUnlock()

	select {
	case <-acquired:
		t.Fatal("second lock of the same key acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
	assert.Zero(t, k.size())
}
