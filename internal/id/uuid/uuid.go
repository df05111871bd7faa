// Package uuid issues job and pipeline-instance identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements branding.IDGenerator with UUIDv7 strings. v7 IDs
// embed a timestamp, which keeps job listings roughly chronological.
type Generator struct{}

// NewUUIDGenerator returns a Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns a new UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
