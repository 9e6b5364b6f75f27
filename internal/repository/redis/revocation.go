package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/accounts-iam/internal/core/port"
)

const defaultRevocationPrefix = "iam:revoked"

// TokenRevocationStore keeps revoked access-token JTIs until the token would have expired anyway.
type TokenRevocationStore struct {
	client *red.Client
	prefix string
}

// NewTokenRevocationStore wires a Redis client into a revocation store.
func NewTokenRevocationStore(client *red.Client, keyPrefix string) *TokenRevocationStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &TokenRevocationStore{client: client, prefix: prefix}
}

// MarkRevoked records the JTI with a reason for ttl.
func (s *TokenRevocationStore) MarkRevoked(ctx context.Context, jti string, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key, err := s.key(jti)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, key, reason, ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked jti: %w", err)
	}

	return nil
}

// IsRevoked reports whether the JTI was revoked, with the stored reason.
func (s *TokenRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, string, error) {
	key, err := s.key(jti)
	if err != nil {
		return false, "", err
	}

	reason, err := s.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, red.Nil):
		return false, "", nil
	case err != nil:
		return false, "", fmt.Errorf("redis get revoked jti: %w", err)
	default:
		return true, reason, nil
	}
}

func (s *TokenRevocationStore) key(jti string) (string, error) {
	trimmed := strings.TrimSpace(jti)
	if trimmed == "" {
		return "", errors.New("jti must not be empty")
	}
	return s.prefix + ":" + trimmed, nil
}

var _ port.TokenRevocationStore = (*TokenRevocationStore)(nil)
