// Package shortcode produces candidate short codes for new mappings.
package shortcode

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// DefaultBytes is the number of random bytes behind a default code, giving
// codes of 2*DefaultBytes lowercase hex characters.
const DefaultBytes = 4

// Generator returns a fresh candidate code on every call. Candidates are not
// guaranteed to be unused; callers detect collisions at the store.
type Generator interface {
	Generate() (string, error)
}

// Random draws codes from crypto/rand.
type Random struct {
	size int
}

func NewRandom(size int) *Random {
	if size < 1 {
		size = DefaultBytes
	}
	return &Random{size: size}
}

func (g *Random) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Len is the length of every code this generator returns.
func (g *Random) Len() int {
	return g.size * 2
}

// Valid reports whether code could have been produced by a Random
// generator of any size: a non-empty string of lowercase hex digits.
func Valid(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
