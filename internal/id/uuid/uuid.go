// Package uuid provides run ID and artifact token generation.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// tokenLen is the number of hex characters kept for artifact name tokens.
const tokenLen = 12

// Generator creates UUID v7 run IDs and short random tokens.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string. IDs sort by creation time.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewToken returns a short lowercase hex token drawn from a random UUIDv4,
// suitable for embedding in file names.
func (Generator) NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", "")[:tokenLen], nil
}
