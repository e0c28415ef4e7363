package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
	"github.com/stretchr/testify/assert"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&game.NotFoundError{ID: "g1"}, http.StatusNotFound, "game_not_found"},
		{fmt.Errorf("lookup: %w", player.ErrNotFound), http.StatusNotFound, "player_not_found"},
		{game.ErrInvalidMove, http.StatusBadRequest, "invalid_move"},
		{player.ErrAlreadyExists, http.StatusConflict, "player_already_exists"},
		{deck.ErrExhausted, http.StatusConflict, "deck_exhausted"},
		{game.Conflict("g1", 3), http.StatusConflict, "game_conflict"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
