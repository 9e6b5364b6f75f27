package domain

import (
	"fmt"
	"strings"
)

// KeyMode selects how primary keys are produced for an entity type.
type KeyMode string

const (
	// KeyModeUUID assigns random version-4 UUIDs before insert.
	KeyModeUUID KeyMode = "uuid"
	// KeyModeSequential leaves key assignment to the store's auto-increment.
	KeyModeSequential KeyMode = "sequential"
)

// ParseKeyMode resolves a configured key mode. "id" is accepted as an alias for sequential.
func ParseKeyMode(raw string) (KeyMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(KeyModeUUID):
		return KeyModeUUID, nil
	case string(KeyModeSequential), "id", "increment":
		return KeyModeSequential, nil
	default:
		return "", fmt.Errorf("unknown key mode %q", raw)
	}
}

// KeyModes holds the per-entity key modes resolved at startup.
type KeyModes struct {
	User       KeyMode
	Role       KeyMode
	Permission KeyMode
}
