package security

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arklim/accounts-iam/internal/core/port"
)

type revocationEntry struct {
	reason    string
	expiresAt time.Time
}

// RevocationList is an in-process token revocation store for deployments without Redis.
// Entries expire with the token they revoke; when MaxEntries is reached the soonest-expiring
// entries are evicted first.
type RevocationList struct {
	mu         sync.RWMutex
	entries    map[string]revocationEntry
	maxEntries int
	now        func() time.Time
}

// NewRevocationList constructs an empty list. maxEntries <= 0 means unbounded.
func NewRevocationList(maxEntries int) *RevocationList {
	return &RevocationList{
		entries:    make(map[string]revocationEntry),
		maxEntries: maxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (l *RevocationList) WithClock(clock func() time.Time) *RevocationList {
	if clock != nil {
		l.mu.Lock()
		l.now = clock
		l.mu.Unlock()
	}
	return l
}

// MarkRevoked records jti as revoked for ttl. A non-positive ttl is a no-op since the token is already dead.
func (l *RevocationList) MarkRevoked(_ context.Context, jti string, reason string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return fmt.Errorf("jti is required")
	}
	if ttl <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if _, exists := l.entries[jti]; !exists && l.maxEntries > 0 && len(l.entries) >= l.maxEntries {
		l.evictLocked(len(l.entries) - l.maxEntries + 1)
	}
	l.entries[jti] = revocationEntry{reason: reason, expiresAt: now.Add(ttl)}
	return nil
}

// IsRevoked reports whether jti is revoked and, if so, why.
func (l *RevocationList) IsRevoked(_ context.Context, jti string) (bool, string, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, "", fmt.Errorf("jti is required")
	}

	l.mu.RLock()
	entry, ok := l.entries[jti]
	now := l.now()
	l.mu.RUnlock()
	if !ok || !entry.expiresAt.After(now) {
		return false, "", nil
	}
	return true, entry.reason, nil
}

// Len returns the number of live entries.
func (l *RevocationList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return len(l.entries)
}

func (l *RevocationList) pruneLocked(now time.Time) {
	for jti, entry := range l.entries {
		if !entry.expiresAt.After(now) {
			delete(l.entries, jti)
		}
	}
}

func (l *RevocationList) evictLocked(count int) {
	if count <= 0 {
		return
	}
	type item struct {
		jti string
		exp time.Time
	}
	items := make([]item, 0, len(l.entries))
	for jti, entry := range l.entries {
		items = append(items, item{jti: jti, exp: entry.expiresAt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].exp.Before(items[j].exp) })
	if count > len(items) {
		count = len(items)
	}
	for _, it := range items[:count] {
		delete(l.entries, it.jti)
	}
}

var _ port.TokenRevocationStore = (*RevocationList)(nil)
