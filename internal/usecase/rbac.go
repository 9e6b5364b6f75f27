package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
)

// distinctNames trims names and drops blanks and duplicates, keeping first-seen order.
func distinctNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}

// resolvePermissions maps every name to a stored permission under guard, or fails naming the first unknown one.
func resolvePermissions(ctx context.Context, repo port.PermissionRepository, names []string, guard string) ([]domain.Permission, error) {
	wanted := distinctNames(names)
	if len(wanted) == 0 {
		return []domain.Permission{}, nil
	}

	found, err := repo.FindByNames(ctx, wanted, guard)
	if err != nil {
		return nil, fmt.Errorf("lookup permissions: %w", err)
	}
	byName := make(map[string]domain.Permission, len(found))
	for _, permission := range found {
		byName[permission.Name] = permission
	}

	resolved := make([]domain.Permission, 0, len(wanted))
	for _, name := range wanted {
		permission, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%q for guard %q: %w", name, guard, ErrPermissionNotFound)
		}
		resolved = append(resolved, permission)
	}
	return resolved, nil
}

// resolveRoles maps every name to a stored role under guard, or fails naming the first unknown one.
func resolveRoles(ctx context.Context, repo port.RoleRepository, names []string, guard string) ([]domain.Role, error) {
	wanted := distinctNames(names)
	if len(wanted) == 0 {
		return []domain.Role{}, nil
	}

	found, err := repo.FindByNames(ctx, wanted, guard)
	if err != nil {
		return nil, fmt.Errorf("lookup roles: %w", err)
	}
	byName := make(map[string]domain.Role, len(found))
	for _, role := range found {
		byName[role.Name] = role
	}

	resolved := make([]domain.Role, 0, len(wanted))
	for _, name := range wanted {
		role, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%q for guard %q: %w", name, guard, ErrRoleNotFound)
		}
		resolved = append(resolved, role)
	}
	return resolved, nil
}

// invalidatePermissionCache bumps the cache generation after an RBAC change. Failures are logged;
// stale entries still expire with their TTL.
func invalidatePermissionCache(ctx context.Context, cache port.PermissionCache, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		logger.Error("invalidate permission cache failed", zap.Error(err))
	}
}
