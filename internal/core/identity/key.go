// Package identity assigns primary keys and generates unique field values for new entities.
package identity

import (
	"strings"

	uuid "github.com/google/uuid"

	"github.com/arklim/accounts-iam/internal/core/domain"
)

// KeyAssigner produces the primary key for a new entity according to a fixed key mode.
type KeyAssigner struct {
	mode domain.KeyMode
}

// NewKeyAssigner builds an assigner for the supplied mode. An empty mode means uuid.
func NewKeyAssigner(mode domain.KeyMode) KeyAssigner {
	if mode == "" {
		mode = domain.KeyModeUUID
	}
	return KeyAssigner{mode: mode}
}

// Mode reports the configured key mode.
func (a KeyAssigner) Mode() domain.KeyMode {
	return a.mode
}

// Assign returns the key to persist with the entity.
// In uuid mode a caller-supplied key is kept, otherwise a new v4 UUID is returned.
// In sequential mode the result is always empty and the store assigns the key on insert.
func (a KeyAssigner) Assign(supplied string) string {
	if a.mode == domain.KeyModeSequential {
		return ""
	}

	if trimmed := strings.TrimSpace(supplied); trimmed != "" {
		return trimmed
	}
	return uuid.NewString()
}
