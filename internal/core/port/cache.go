package port

import (
	"context"
	"time"
)

// CachedPermissions is the result of a cache read. Generation is the cache epoch the read
// observed; a set loaded after a miss is written back under that same generation.
type CachedPermissions struct {
	Names      []string
	Generation int64
	Hit        bool
}

// PermissionCache memoizes a user's effective permission names per guard.
type PermissionCache interface {
	GetPermissions(ctx context.Context, userID string, guard string) (CachedPermissions, error)
	// SetPermissions stores the set under generation. A set written under a generation that
	// has since been invalidated is never served.
	SetPermissions(ctx context.Context, generation int64, userID string, guard string, permissions []string) error
	// Invalidate drops every cached set.
	Invalidate(ctx context.Context) error
}

// TokenRevocationStore tracks revoked access-token identifiers until they expire.
type TokenRevocationStore interface {
	MarkRevoked(ctx context.Context, jti string, reason string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, string, error)
}
