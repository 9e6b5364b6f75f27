package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/identity"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

// CreatePermissionInput captures the payload for defining a permission.
type CreatePermissionInput struct {
	ID        string  `validate:"max=64"`
	Name      string  `validate:"required,max=255"`
	GuardName string  `validate:"max=255"`
	Module    *string `validate:"omitempty,max=255"`
}

// UpdatePermissionInput describes a partial permission update.
type UpdatePermissionInput struct {
	Name      *string
	GuardName *string
	Module    *string
}

// PermissionService manages the permission catalogue.
type PermissionService struct {
	permissions port.PermissionRepository
	keys        identity.KeyAssigner
	cache       port.PermissionCache
	guard       string
	logger      *zap.Logger
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(permissions port.PermissionRepository, keys identity.KeyAssigner, cache port.PermissionCache, guard string, logger *zap.Logger) *PermissionService {
	if keys.Mode() == "" {
		keys = identity.NewKeyAssigner(domain.KeyModeUUID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{
		permissions: permissions,
		keys:        keys,
		cache:       cache,
		guard:       defaultGuard(guard),
		logger:      logger,
	}
}

// List returns one page of permissions matching the query.
func (s *PermissionService) List(ctx context.Context, query ListQuery) (domain.Page[domain.Permission], error) {
	filter, page, size, err := query.resolve(guardedSortColumns)
	if err != nil {
		return domain.Page[domain.Permission]{}, err
	}

	permissions, total, err := s.permissions.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.Permission]{}, fmt.Errorf("list permissions: %w", err)
	}
	return newPage(permissions, total, page, size), nil
}

// Create defines a permission.
func (s *PermissionService) Create(ctx context.Context, input CreatePermissionInput) (*domain.Permission, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	input.GuardName = defaultGuardOr(input.GuardName, s.guard)
	input.Module = trimmedOrNil(input.Module)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	created, err := s.permissions.Create(ctx, domain.Permission{
		ID:        s.keys.Assign(input.ID),
		Name:      input.Name,
		GuardName: input.GuardName,
		Module:    input.Module,
	})
	if err != nil {
		return nil, writeError("create permission", err, nil)
	}
	s.logger.Info("permission created", zap.String("permission_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

// Update applies a partial update to the permission.
func (s *PermissionService) Update(ctx context.Context, id string, input UpdatePermissionInput) (*domain.Permission, error) {
	permission, err := s.permissions.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("lookup permission: %w", err)
	}

	renamed := false
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, invalidInput("name is required")
		}
		renamed = name != permission.Name
		permission.Name = name
	}
	if input.GuardName != nil {
		guard := defaultGuardOr(*input.GuardName, s.guard)
		renamed = renamed || guard != permission.GuardName
		permission.GuardName = guard
	}
	if input.Module != nil {
		permission.Module = trimmedOrNil(input.Module)
	}

	updated, err := s.permissions.Update(ctx, *permission)
	if err != nil {
		return nil, writeError("update permission", err, ErrPermissionNotFound)
	}
	if renamed {
		invalidatePermissionCache(ctx, s.cache, s.logger)
	}
	s.logger.Info("permission updated", zap.String("permission_id", updated.ID))
	return updated, nil
}

// Delete removes the permission and every grant of it.
func (s *PermissionService) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.permissions.Delete(ctx, strings.TrimSpace(id)); err != nil {
		return false, writeError("delete permission", err, ErrPermissionNotFound)
	}
	invalidatePermissionCache(ctx, s.cache, s.logger)
	s.logger.Info("permission deleted", zap.String("permission_id", id))
	return true, nil
}

// FindByID returns the permission or nil when no permission has the key.
func (s *PermissionService) FindByID(ctx context.Context, id string) (*domain.Permission, error) {
	return findOrNil(s.permissions.GetByID(ctx, strings.TrimSpace(id)))
}

// FindByName returns the permission named name under guard, or nil.
func (s *PermissionService) FindByName(ctx context.Context, name string, guard string) (*domain.Permission, error) {
	return findOrNil(s.permissions.GetByName(ctx, strings.TrimSpace(name), defaultGuardOr(guard, s.guard)))
}
