package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/accounts-iam/internal/core/port"
)

const (
	defaultPermissionCachePrefix = "iam:perm"
	defaultPermissionCacheTTL    = 10 * time.Minute
)

// PermissionCache stores effective permission sets keyed by a global generation counter.
// Bumping the generation orphans every previously cached set, which then expires by TTL.
type PermissionCache struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewPermissionCache wires a Redis client into a permission cache.
func NewPermissionCache(client *red.Client, keyPrefix string, ttl time.Duration) *PermissionCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultPermissionCachePrefix
	}
	if ttl <= 0 {
		ttl = defaultPermissionCacheTTL
	}
	return &PermissionCache{client: client, prefix: prefix, ttl: ttl}
}

// GetPermissions returns the cached set together with the generation it was looked up under.
func (c *PermissionCache) GetPermissions(ctx context.Context, userID string, guard string) (port.CachedPermissions, error) {
	generation, err := c.generation(ctx)
	if err != nil {
		return port.CachedPermissions{}, err
	}
	result := port.CachedPermissions{Generation: generation}

	raw, err := c.client.Get(ctx, c.key(generation, userID, guard)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return result, nil
		}
		return result, fmt.Errorf("redis get permissions: %w", err)
	}

	if err := json.Unmarshal(raw, &result.Names); err != nil {
		return result, fmt.Errorf("decode cached permissions: %w", err)
	}
	result.Hit = true
	return result, nil
}

// SetPermissions caches the set under generation. Writes for a generation that has already
// been superseded are skipped.
func (c *PermissionCache) SetPermissions(ctx context.Context, generation int64, userID string, guard string, permissions []string) error {
	if permissions == nil {
		permissions = []string{}
	}
	payload, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	key := c.key(generation, userID, guard)
	err = c.client.Watch(ctx, func(tx *red.Tx) error {
		current, err := currentGeneration(ctx, tx, c.generationKey())
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, c.generationKey())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, red.TxFailedErr):
		// invalidated while writing
		return nil
	default:
		return fmt.Errorf("redis set permissions: %w", err)
	}
}

// Invalidate advances the generation counter.
func (c *PermissionCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("redis incr permission generation: %w", err)
	}
	return nil
}

func (c *PermissionCache) generationKey() string {
	return c.prefix + ":generation"
}

func (c *PermissionCache) generation(ctx context.Context) (int64, error) {
	return currentGeneration(ctx, c.client, c.generationKey())
}

type stringGetter interface {
	Get(ctx context.Context, key string) *red.StringCmd
}

func currentGeneration(ctx context.Context, cmd stringGetter, key string) (int64, error) {
	generation, err := cmd.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get permission generation: %w", err)
	}
	return generation, nil
}

func (c *PermissionCache) key(generation int64, userID string, guard string) string {
	return fmt.Sprintf("%s:%d:%s:%s", c.prefix, generation, guard, userID)
}

var _ port.PermissionCache = (*PermissionCache)(nil)
