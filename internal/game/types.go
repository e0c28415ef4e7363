package game

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound matches every missing-game error.
	ErrNotFound = errors.New("game not found")
	// ErrInvalidMove is returned for unrecognised move tokens.
	ErrInvalidMove = errors.New("invalid move")
	// ErrInProgress is returned when a result is requested for an active game.
	ErrInProgress = errors.New("game still in progress")
	// ErrConflict is returned when a save loses a race with another writer.
	ErrConflict = errors.New("game was modified concurrently")
)

// Conflict builds the error for a save of a stale revision.
func Conflict(id string, version int64) error {
	return fmt.Errorf("%w: game %s at version %d", ErrConflict, id, version)
}

// NotFoundError carries the id of a missing game.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("game %s not found", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Status is the lifecycle state of a game.
type Status int

const (
	Active Status = iota
	Finished
)

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status as its enum name.
func (s Status) MarshalText() ([]byte, error) {
	if s != Active && s != Finished {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes "ACTIVE" or "FINISHED".
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "ACTIVE":
		*s = Active
	case "FINISHED":
		*s = Finished
	default:
		return fmt.Errorf("invalid status %q", string(text))
	}
	return nil
}

// Participant names a side of the table. None doubles as the tie result.
type Participant int

const (
	None Participant = iota
	Player
	Dealer
)

func (p Participant) String() string {
	switch p {
	case None:
		return "NONE"
	case Player:
		return "PLAYER"
	case Dealer:
		return "DEALER"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the participant as its enum name.
func (p Participant) MarshalText() ([]byte, error) {
	if p < None || p > Dealer {
		return nil, fmt.Errorf("invalid participant %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes "NONE", "PLAYER" or "DEALER".
func (p *Participant) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "NONE":
		*p = None
	case "PLAYER":
		*p = Player
	case "DEALER":
		*p = Dealer
	default:
		return fmt.Errorf("invalid participant %q", string(text))
	}
	return nil
}

// Move is a player decision.
type Move string

const (
	Hit   Move = "HIT"
	Stand Move = "STAND"
)

// ParseMove accepts move tokens in any case.
func ParseMove(s string) (Move, error) {
	switch m := Move(strings.ToUpper(strings.TrimSpace(s))); m {
	case Hit, Stand:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMove, s)
}
