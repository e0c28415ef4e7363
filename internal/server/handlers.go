package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/service"
)

const maxBodySize = 64 * 1024

// readToken reads a single string from the request body. It accepts a JSON
// object holding field, a JSON string, or the bare text.
func readToken(r *http.Request, field string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	raw := strings.TrimSpace(string(body))

	switch {
	case strings.HasPrefix(raw, "{"):
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			return "", fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		v, _ := obj[field].(string)
		raw = v
	case strings.HasPrefix(raw, `"`):
		var v string
		if err := json.Unmarshal(body, &v); err != nil {
			return "", fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
		}
		raw = v
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: missing %s", service.ErrInvalidInput, field)
	}
	return raw, nil
}

func pathPlayerID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: player id %q", service.ErrInvalidInput, r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	name, err := readToken(r, "playerName")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.games.CreateGame(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	res, err := s.games.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("player"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: player query parameter", service.ErrInvalidInput))
		return
	}

	games, err := s.games.ListGames(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	token, err := readToken(r, "move")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	move, err := game.ParseMove(token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.games.ApplyMove(r.Context(), r.PathValue("id"), move)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.games.Settle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.games.DeleteGame(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	name, err := readToken(r, "name")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.players.Create(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlayerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.players.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRenamePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlayerID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := readToken(r, "name")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.players.Rename(r.Context(), id, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	players, err := s.players.Ranking(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(players) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, players)
}
