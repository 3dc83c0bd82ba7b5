// Package passkey produces and normalizes the short codes that gate a
// doctor's access to a patient's records.
package passkey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Length is the number of characters in every passkey.
	Length = 5
	// Alphabet holds the 36 symbols a passkey is drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces candidate passkeys. It never checks collisions.
type Generator interface {
	Generate() (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() (string, error)

func (f GeneratorFunc) Generate() (string, error) {
	return f()
}

type randomGenerator struct{}

// NewGenerator returns a Generator that picks each character uniformly and
// independently using crypto/rand.
func NewGenerator() Generator {
	return randomGenerator{}
}

func (randomGenerator) Generate() (string, error) {
	return Generate()
}

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a fresh passkey.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize trims surrounding whitespace and uppercases input.
func Normalize(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// ValidFormat reports whether code, already normalized, has the passkey
// length and only alphabet characters.
func ValidFormat(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
