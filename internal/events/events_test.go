package events

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMultiTriesEveryPublisher(t *testing.T) {
	boom := errors.New("boom")
	a, b := &Recorder{}, &Recorder{}

	err := Multi{a, failing{boom}, b}.Publish(context.Background(), Event{Type: GameCreated, GameID: "g1"})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestRecorderKeepsOrder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, Event{Type: GameCreated}))
	require.NoError(t, r.Publish(ctx, Event{Type: GameFinished}))

	assert.Equal(t, []Type{GameCreated, GameFinished}, r.Types())
}

func TestPublishLoggedSwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.WarnLevel})

	PublishLogged(context.Background(), failing{errors.New("down")}, logger, Event{Type: GameUpdated, GameID: "g1"})
	PublishLogged(context.Background(), nil, logger, Event{Type: GameUpdated})

	assert.Contains(t, buf.String(), "Event publish failed")
	assert.Contains(t, buf.String(), "down")
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("BLACKJACK_TEST_REDIS")
	if addr == "" {
		t.Skip("BLACKJACK_TEST_REDIS not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel})
	r, err := NewRedis(ctx, addr, "blackjack:test:"+t.Name(), logger)
	require.NoError(t, err)
	defer r.Close()

	rec := &Recorder{}
	done := make(chan error, 1)
	go func() { done <- r.Forward(ctx, rec) }()

	require.Eventually(t, func() bool {
		_ = r.Publish(ctx, Event{Type: GameCreated, GameID: "g1", PlayerID: 3})
		return len(rec.Events()) > 0
	}, 3*time.Second, 50*time.Millisecond)

	got := rec.Events()[0]
	assert.Equal(t, GameCreated, got.Type)
	assert.Equal(t, int64(3), got.PlayerID)

	cancel()
	assert.NoError(t, <-done)
}
