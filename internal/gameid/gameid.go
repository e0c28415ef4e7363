// Package gameid generates the public identifiers of games: a UUIDv7
// encoded as 26 characters of lowercase Crockford base32, in the TypeID
// layout. Ids sort by creation time.
package gameid

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the number of characters in an encoded id.
const Length = 26

// Generator creates game ids, optionally from a fixed entropy source.
type Generator struct {
	rand io.Reader
}

// NewGenerator creates a generator. A nil reader uses crypto randomness.
func NewGenerator(rand io.Reader) *Generator {
	return &Generator{rand: rand}
}

// Generate creates a new game ID using crypto randomness.
func Generate() string {
	return NewGenerator(nil).Generate()
}

// Generate creates a new game ID.
func (g *Generator) Generate() string {
	var (
		id  uuid.UUID
		err error
	)
	if g.rand != nil {
		id, err = uuid.NewV7FromReader(g.rand)
	} else {
		id, err = uuid.NewV7()
	}
	if err != nil {
		panic("failed to generate game id: " + err.Error())
	}
	return Encode(id)
}

// Encode writes the 128 bits of id behind two zero bits, five bits per
// character.
func Encode(id uuid.UUID) string {
	var out [Length]byte
	for i := range out {
		var v byte
		for b := 0; b < 5; b++ {
			bit := i*5 + b - 2
			v <<= 1
			if bit >= 0 && id[bit/8]&(0x80>>(bit%8)) != 0 {
				v |= 1
			}
		}
		out[i] = alphabet[v]
	}
	return string(out[:])
}

// Parse decodes an encoded id back into its UUID.
func Parse(s string) (uuid.UUID, error) {
	var id uuid.UUID
	if len(s) != Length {
		return id, fmt.Errorf("game ID must be exactly %d characters, got %d", Length, len(s))
	}
	// the leading character only carries three bits
	if s[0] > '7' {
		return id, fmt.Errorf("game ID first character must be 0-7, got %c", s[0])
	}

	for i := 0; i < Length; i++ {
		v := strings.IndexByte(alphabet, s[i])
		if v < 0 {
			return uuid.UUID{}, fmt.Errorf("invalid character %c at position %d", s[i], i)
		}
		for b := 0; b < 5; b++ {
			bit := i*5 + b - 2
			if bit < 0 {
				continue
			}
			if v&(0x10>>b) != 0 {
				id[bit/8] |= 0x80 >> (bit % 8)
			}
		}
	}
	return id, nil
}

// Validate checks if a game ID is valid (26 characters, valid base32)
func Validate(id string) error {
	_, err := Parse(id)
	return err
}
