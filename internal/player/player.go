// Package player manages player records: identity, unique names and running
// point totals.
package player

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNotFound matches every lookup miss, whatever key was used.
	ErrNotFound = errors.New("player not found")
	// ErrAlreadyExists is returned when a name is already taken.
	ErrAlreadyExists = errors.New("player already exists")
	// ErrInvalidName is returned for blank names.
	ErrInvalidName = errors.New("player name cannot be blank")
)

// NotFoundError carries the key of a failed player lookup.
type NotFoundError struct {
	Key string
}

// NotFoundByID builds the error for a missing player id.
func NotFoundByID(id int64) *NotFoundError {
	return &NotFoundError{Key: strconv.FormatInt(id, 10)}
}

// NotFoundByName builds the error for a missing player name.
func NotFoundByName(name string) *NotFoundError {
	return &NotFoundError{Key: name}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("player %s not found", e.Key)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Status is the per-game outcome shown next to a player. It is never stored.
type Status string

const (
	StatusUnset Status = ""
	StatusWon   Status = "WON"
	StatusLost  Status = "LOST"
	StatusTie   Status = "TIE"
)

// Player is a stored player record.
type Player struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TotalPoints int    `json:"totalPoints"`
	Status      Status `json:"status,omitempty"`
}

// WithStatus returns a copy of p carrying the given game outcome.
func (p Player) WithStatus(s Status) Player {
	p.Status = s
	return p
}
