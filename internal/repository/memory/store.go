// Package memory provides mutex-guarded in-process repositories used for development and tests.
package memory

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

type linkSet map[string]map[string]struct{}

func (l linkSet) add(owner, target string) bool {
	targets, ok := l[owner]
	if !ok {
		targets = make(map[string]struct{})
		l[owner] = targets
	}
	if _, exists := targets[target]; exists {
		return false
	}
	targets[target] = struct{}{}
	return true
}

func (l linkSet) remove(owner, target string) bool {
	targets, ok := l[owner]
	if !ok {
		return false
	}
	if _, exists := targets[target]; !exists {
		return false
	}
	delete(targets, target)
	return true
}

func (l linkSet) dropTarget(target string) {
	for _, targets := range l {
		delete(targets, target)
	}
}

// Store keeps users, roles, permissions and their links behind one lock so multi-entity
// operations are atomic.
type Store struct {
	mu sync.RWMutex

	users       map[string]domain.User
	roles       map[string]domain.Role
	permissions map[string]domain.Permission

	userRoles       linkSet
	rolePermissions linkSet
	userPermissions linkSet

	sequences map[string]int64
	now       func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		users:           make(map[string]domain.User),
		roles:           make(map[string]domain.Role),
		permissions:     make(map[string]domain.Permission),
		userRoles:       make(linkSet),
		rolePermissions: make(linkSet),
		userPermissions: make(linkSet),
		sequences:       make(map[string]int64),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{store: s} }

// Roles returns the role repository view of the store.
func (s *Store) Roles() *RoleRepository { return &RoleRepository{store: s} }

// Permissions returns the permission repository view of the store.
func (s *Store) Permissions() *PermissionRepository { return &PermissionRepository{store: s} }

// assignKey returns the supplied key, or the next value of the table's sequence when it is empty.
// Callers must hold the write lock.
func (s *Store) assignKey(table, supplied string) string {
	if supplied != "" {
		if n, err := strconv.ParseInt(supplied, 10, 64); err == nil && n > s.sequences[table] {
			s.sequences[table] = n
		}
		return supplied
	}
	s.sequences[table]++
	return strconv.FormatInt(s.sequences[table], 10)
}

func conflict(constraint string) error {
	return &repository.ConstraintError{Constraint: constraint}
}

// compareKeys orders numeric keys numerically and everything else lexically.
func compareKeys(a, b string) int {
	an, aErr := strconv.ParseInt(a, 10, 64)
	bn, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func matchesSearch(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func matchesModule(filter port.ListFilter, module *string) bool {
	want := strings.TrimSpace(filter.Module)
	if want == "" {
		return true
	}
	return module != nil && *module == want
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// sortAndPage orders items by the requested field (or created_at desc) with the key as tie-breaker,
// then applies limit and offset.
func sortAndPage[T any](items []T, filter port.ListFilter, field func(T, string) (string, time.Time, bool), key func(T) string) []T {
	sort.SliceStable(items, func(i, j int) bool {
		name := filter.SortField
		desc := filter.SortDesc
		if name == "" {
			name, desc = "created_at", true
		}

		si, ti, isTime := field(items[i], name)
		sj, tj, _ := field(items[j], name)

		var cmp int
		if isTime {
			cmp = compareTimes(ti, tj)
		} else {
			cmp = strings.Compare(si, sj)
		}
		if cmp == 0 {
			cmp = compareKeys(key(items[i]), key(items[j]))
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})

	start := filter.Offset
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return items[start:end]
}
