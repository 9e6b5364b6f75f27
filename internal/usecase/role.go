package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/identity"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

// CreateRoleInput captures the payload for creating a role.
type CreateRoleInput struct {
	ID          string  `validate:"max=64"`
	Name        string  `validate:"required,max=255"`
	GuardName   string  `validate:"max=255"`
	Module      *string `validate:"omitempty,max=255"`
	Permissions []string
}

// UpdateRoleInput describes a partial role update. A non-nil Permissions slice replaces the set.
type UpdateRoleInput struct {
	Name        *string
	GuardName   *string
	Module      *string
	Permissions []string
}

// RoleServiceDeps wires a RoleService.
type RoleServiceDeps struct {
	Roles       port.RoleRepository
	Permissions port.PermissionRepository
	Keys        identity.KeyAssigner
	Events      port.EventPublisher
	Cache       port.PermissionCache
	Guard       string
	Logger      *zap.Logger
}

// RoleService manages roles and the permissions granted to them.
type RoleService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	keys        identity.KeyAssigner
	events      port.EventPublisher
	cache       port.PermissionCache
	guard       string
	logger      *zap.Logger
	now         func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(deps RoleServiceDeps) (*RoleService, error) {
	if deps.Roles == nil || deps.Permissions == nil {
		return nil, fmt.Errorf("role service: repositories are required")
	}
	keys := deps.Keys
	if keys.Mode() == "" {
		keys = identity.NewKeyAssigner(domain.KeyModeUUID)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{
		roles:       deps.Roles,
		permissions: deps.Permissions,
		keys:        keys,
		events:      deps.Events,
		cache:       deps.Cache,
		guard:       defaultGuard(deps.Guard),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// List returns one page of roles matching the query.
func (s *RoleService) List(ctx context.Context, query ListQuery) (domain.Page[domain.Role], error) {
	filter, page, size, err := query.resolve(guardedSortColumns)
	if err != nil {
		return domain.Page[domain.Role]{}, err
	}

	roles, total, err := s.roles.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Role]{}, fmt.Errorf("list roles: %w", err)
	}
	return newPage(roles, total, page, size), nil
}

// Create provisions a role and, when permission names are given, syncs them onto it.
// Unknown permission names fail the call before anything is written.
func (s *RoleService) Create(ctx context.Context, input CreateRoleInput) (*domain.Role, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	input.GuardName = defaultGuardOr(input.GuardName, s.guard)
	input.Module = trimmedOrNil(input.Module)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var permissions []domain.Permission
	if len(input.Permissions) > 0 {
		resolved, err := resolvePermissions(ctx, s.permissions, input.Permissions, input.GuardName)
		if err != nil {
			return nil, err
		}
		permissions = resolved
	}

	role := domain.Role{
		ID:        s.keys.Assign(input.ID),
		Name:      input.Name,
		GuardName: input.GuardName,
		Module:    input.Module,
	}
	if permissions == nil {
		created, err := s.roles.Create(ctx, role)
		if err != nil {
			return nil, writeError("create role", err, nil)
		}
		s.logger.Info("role created", zap.String("role_id", created.ID), zap.String("guard", created.GuardName))
		created.Permissions = []domain.Permission{}
		return created, nil
	}

	created, err := s.roles.CreateWithPermissions(ctx, role, permissionIDs(permissions))
	if err != nil {
		return nil, writeError("create role", err, nil)
	}
	s.logger.Info("role created", zap.String("role_id", created.ID), zap.String("guard", created.GuardName))
	s.afterPermissionChange(ctx, created, permissions, false)
	created.Permissions = permissions
	return created, nil
}

// Update applies a partial update to the role. Moving the role to another guard re-resolves its
// current permission names under the new guard unless Permissions is given; a name missing there
// fails the call with ErrPermissionNotFound and nothing changes.
func (s *RoleService) Update(ctx context.Context, id string, input UpdateRoleInput) (*domain.Role, error) {
	role, err := s.requireRole(ctx, id)
	if err != nil {
		return nil, err
	}
	previousGuard := role.GuardName

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, invalidInput("name is required")
		}
		role.Name = name
	}
	if input.GuardName != nil {
		role.GuardName = defaultGuardOr(*input.GuardName, s.guard)
	}
	if input.Module != nil {
		role.Module = trimmedOrNil(input.Module)
	}

	names := input.Permissions
	if names == nil && role.GuardName != previousGuard {
		current, err := s.permissions.ListByRole(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("list role permissions: %w", err)
		}
		names = domain.PermissionNames(current)
	}

	if names == nil {
		updated, err := s.roles.Update(ctx, *role)
		if err != nil {
			return nil, writeError("update role", err, ErrRoleNotFound)
		}
		s.logger.Info("role updated", zap.String("role_id", updated.ID))
		return s.withPermissions(ctx, updated)
	}

	permissions, err := resolvePermissions(ctx, s.permissions, names, role.GuardName)
	if err != nil {
		return nil, err
	}
	updated, err := s.roles.UpdateWithPermissions(ctx, *role, permissionIDs(permissions))
	if err != nil {
		return nil, writeError("update role", err, ErrRoleNotFound)
	}
	s.logger.Info("role updated", zap.String("role_id", updated.ID), zap.String("guard", updated.GuardName))
	s.afterPermissionChange(ctx, updated, permissions, false)
	updated.Permissions = permissions
	return updated, nil
}

// Delete removes the role and its links.
func (s *RoleService) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.roles.Delete(ctx, strings.TrimSpace(id)); err != nil {
		return false, writeError("delete role", err, ErrRoleNotFound)
	}
	invalidatePermissionCache(ctx, s.cache, s.logger)
	s.logger.Info("role deleted", zap.String("role_id", id))
	return true, nil
}

// FindByID returns the role with its permissions, or nil when no role has the key.
func (s *RoleService) FindByID(ctx context.Context, id string) (*domain.Role, error) {
	role, err := findOrNil(s.roles.GetByID(ctx, strings.TrimSpace(id)))
	if err != nil || role == nil {
		return nil, err
	}
	return s.withPermissions(ctx, role)
}

// FindByName returns the role named name under guard, or nil.
func (s *RoleService) FindByName(ctx context.Context, name string, guard string) (*domain.Role, error) {
	return findOrNil(s.roles.GetByName(ctx, strings.TrimSpace(name), defaultGuardOr(guard, s.guard)))
}

// SyncPermissions replaces the role's permissions with the named ones. Every name must resolve
// within the role's guard; otherwise nothing changes and the error names the missing permission.
func (s *RoleService) SyncPermissions(ctx context.Context, roleID string, names []string) (*domain.Role, error) {
	role, err := s.requireRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	permissions, err := resolvePermissions(ctx, s.permissions, names, role.GuardName)
	if err != nil {
		return nil, err
	}
	return s.replacePermissions(ctx, role, permissions)
}

// GivePermissions adds the named permissions to the role, keeping existing grants.
func (s *RoleService) GivePermissions(ctx context.Context, roleID string, names []string) (*domain.Role, error) {
	role, err := s.requireRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	permissions, err := resolvePermissions(ctx, s.permissions, names, role.GuardName)
	if err != nil {
		return nil, err
	}

	added, err := s.roles.AssignPermissions(ctx, role.ID, permissionIDs(permissions))
	if err != nil {
		return nil, writeError("assign permissions", err, ErrRoleNotFound)
	}
	s.afterPermissionChange(ctx, role, permissions, true)
	s.logger.Info("role permissions granted", zap.String("role_id", role.ID), zap.Int("added", added))
	return s.withPermissions(ctx, role)
}

// RevokePermissions removes the named permissions from the role.
func (s *RoleService) RevokePermissions(ctx context.Context, roleID string, names []string) (*domain.Role, error) {
	role, err := s.requireRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	permissions, err := resolvePermissions(ctx, s.permissions, names, role.GuardName)
	if err != nil {
		return nil, err
	}

	removed, err := s.roles.RevokePermissions(ctx, role.ID, permissionIDs(permissions))
	if err != nil {
		return nil, fmt.Errorf("revoke permissions: %w", err)
	}
	invalidatePermissionCache(ctx, s.cache, s.logger)
	s.logger.Info("role permissions revoked", zap.String("role_id", role.ID), zap.Int("removed", removed))
	return s.withPermissions(ctx, role)
}

func (s *RoleService) replacePermissions(ctx context.Context, role *domain.Role, permissions []domain.Permission) (*domain.Role, error) {
	if err := s.roles.SyncPermissions(ctx, role.ID, permissionIDs(permissions)); err != nil {
		return nil, writeError("sync permissions", err, ErrRoleNotFound)
	}
	s.afterPermissionChange(ctx, role, permissions, false)

	synced := *role
	synced.Permissions = permissions
	return &synced, nil
}

func (s *RoleService) afterPermissionChange(ctx context.Context, role *domain.Role, permissions []domain.Permission, additive bool) {
	invalidatePermissionCache(ctx, s.cache, s.logger)
	if s.events == nil {
		return
	}
	err := s.events.PublishRolePermissionsSynced(ctx, domain.RolePermissionsSyncedEvent{
		EventID:     uuid.NewString(),
		RoleID:      role.ID,
		RoleName:    role.Name,
		Guard:       role.GuardName,
		Permissions: domain.PermissionNames(permissions),
		Additive:    additive,
		SyncedAt:    s.now(),
	})
	if err != nil {
		s.logger.Warn("publish role permissions synced event failed", zap.String("role_id", role.ID), zap.Error(err))
	}
}

func (s *RoleService) withPermissions(ctx context.Context, role *domain.Role) (*domain.Role, error) {
	permissions, err := s.permissions.ListByRole(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	role.Permissions = permissions
	return role, nil
}

func (s *RoleService) requireRole(ctx context.Context, id string) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	return role, nil
}

func permissionIDs(permissions []domain.Permission) []string {
	ids := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		ids = append(ids, permission.ID)
	}
	return ids
}

func defaultGuardOr(guard, fallback string) string {
	if guard = strings.TrimSpace(guard); guard != "" {
		return guard
	}
	return fallback
}
