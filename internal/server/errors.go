package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/player"
	"github.com/lox/blackjack/internal/service"
)

// errorStatus maps engine errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound, "game_not_found"
	case errors.Is(err, player.ErrNotFound):
		return http.StatusNotFound, "player_not_found"
	case errors.Is(err, game.ErrInvalidMove):
		return http.StatusBadRequest, "invalid_move"
	case errors.Is(err, player.ErrInvalidName), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, player.ErrAlreadyExists):
		return http.StatusConflict, "player_already_exists"
	case errors.Is(err, deck.ErrExhausted):
		return http.StatusConflict, "deck_exhausted"
	case errors.Is(err, game.ErrInProgress):
		return http.StatusConflict, "game_in_progress"
	case errors.Is(err, game.ErrConflict):
		return http.StatusConflict, "game_conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Ignore write errors to disconnected clients
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, ErrorData{Code: code, Message: msg})
}
