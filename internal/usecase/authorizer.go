package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
)

// Authorizer answers permission and role questions about a subject.
type Authorizer struct {
	permissions port.PermissionRepository
	roles       port.RoleRepository
	cache       port.PermissionCache
	guard       string
	logger      *zap.Logger
}

// NewAuthorizer constructs an Authorizer. cache may be nil.
func NewAuthorizer(permissions port.PermissionRepository, roles port.RoleRepository, cache port.PermissionCache, guard string, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{
		permissions: permissions,
		roles:       roles,
		cache:       cache,
		guard:       defaultGuard(guard),
		logger:      logger,
	}
}

// Can reports whether the holder has the permission under guard, directly or through a role.
func (a *Authorizer) Can(ctx context.Context, holder domain.RoleHolder, permission string, guard string) (bool, error) {
	if holder == nil || strings.TrimSpace(holder.HolderID()) == "" {
		return false, nil
	}
	names, err := a.PermissionNames(ctx, holder.HolderID(), guard)
	if err != nil {
		return false, err
	}
	permission = strings.TrimSpace(permission)
	for _, name := range names {
		if name == permission {
			return true, nil
		}
	}
	return false, nil
}

// CanAny reports whether the holder has at least one of the permissions under guard.
func (a *Authorizer) CanAny(ctx context.Context, holder domain.RoleHolder, guard string, permissions ...string) (bool, error) {
	if holder == nil || strings.TrimSpace(holder.HolderID()) == "" {
		return false, nil
	}
	names, err := a.PermissionNames(ctx, holder.HolderID(), guard)
	if err != nil {
		return false, err
	}
	held := make(map[string]struct{}, len(names))
	for _, name := range names {
		held[name] = struct{}{}
	}
	for _, permission := range permissions {
		if _, ok := held[permission]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasRole reports whether the holder has the named role under guard.
func (a *Authorizer) HasRole(ctx context.Context, holder domain.RoleHolder, role string, guard string) (bool, error) {
	if holder == nil || strings.TrimSpace(holder.HolderID()) == "" {
		return false, nil
	}
	guard = defaultGuardOr(guard, a.guard)
	roles, err := a.roles.ListByUser(ctx, holder.HolderID())
	if err != nil {
		return false, fmt.Errorf("list roles: %w", err)
	}
	for _, candidate := range roles {
		if candidate.Name == role && candidate.GuardName == guard {
			return true, nil
		}
	}
	return false, nil
}

// PermissionNames returns the sorted names of every permission the user holds under guard.
func (a *Authorizer) PermissionNames(ctx context.Context, userID string, guard string) ([]string, error) {
	guard = defaultGuardOr(guard, a.guard)

	var (
		generation int64
		cacheable  bool
	)
	if a.cache != nil {
		cached, err := a.cache.GetPermissions(ctx, userID, guard)
		switch {
		case err != nil:
			a.logger.Warn("permission cache read failed", zap.String("user_id", userID), zap.Error(err))
		case cached.Hit:
			return cached.Names, nil
		default:
			generation, cacheable = cached.Generation, true
		}
	}

	permissions, err := a.permissions.ListByUser(ctx, userID, guard)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	names := domain.PermissionNames(permissions)

	if cacheable {
		if err := a.cache.SetPermissions(ctx, generation, userID, guard, names); err != nil {
			a.logger.Warn("permission cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return names, nil
}
