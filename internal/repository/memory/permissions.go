package memory

import (
	"context"
	"time"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

// PermissionRepository implements port.PermissionRepository over a Store.
type PermissionRepository struct {
	store *Store
}

// Create inserts a permission, enforcing (name, guard_name) uniqueness.
func (r *PermissionRepository) Create(_ context.Context, permission domain.Permission) (*domain.Permission, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if permission.ID != "" {
		if _, exists := s.permissions[permission.ID]; exists {
			return nil, conflict("permissions_pkey")
		}
	}
	if s.permissionNameTaken(permission.Name, permission.GuardName, "") {
		return nil, conflict(repository.ConstraintPermissionsName)
	}

	permission.ID = s.assignKey("permissions", permission.ID)
	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = s.now()
	}
	if permission.UpdatedAt.IsZero() {
		permission.UpdatedAt = permission.CreatedAt
	}
	s.permissions[permission.ID] = permission

	created := permission
	return &created, nil
}

func (s *Store) permissionNameTaken(name, guard, selfID string) bool {
	for id, existing := range s.permissions {
		if id != selfID && existing.Name == name && existing.GuardName == guard {
			return true
		}
	}
	return false
}

// GetByID retrieves a permission by key.
func (r *PermissionRepository) GetByID(_ context.Context, id string) (*domain.Permission, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	permission, ok := r.store.permissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &permission, nil
}

// GetByName retrieves a permission by name within a guard.
func (r *PermissionRepository) GetByName(_ context.Context, name string, guard string) (*domain.Permission, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, permission := range r.store.permissions {
		if permission.Name == name && permission.GuardName == guard {
			found := permission
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

// FindByNames returns the permissions that exist among names under guard, ordered by name.
func (r *PermissionRepository) FindByNames(_ context.Context, names []string, guard string) ([]domain.Permission, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	permissions := make([]domain.Permission, 0, len(names))
	for _, permission := range r.store.permissions {
		if _, ok := wanted[permission.Name]; ok && permission.GuardName == guard {
			permissions = append(permissions, permission)
		}
	}
	return sortAndPage(permissions, port.ListFilter{SortField: "name"}, guardedPermissionField, permissionKey), nil
}

// Update replaces the mutable fields of an existing permission.
func (r *PermissionRepository) Update(_ context.Context, permission domain.Permission) (*domain.Permission, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.permissions[permission.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.permissionNameTaken(permission.Name, permission.GuardName, permission.ID) {
		return nil, conflict(repository.ConstraintPermissionsName)
	}

	permission.CreatedAt = existing.CreatedAt
	permission.UpdatedAt = s.now()
	s.permissions[permission.ID] = permission

	updated := permission
	return &updated, nil
}

// Delete removes the permission and every grant of it.
func (r *PermissionRepository) Delete(_ context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.permissions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.permissions, id)
	s.rolePermissions.dropTarget(id)
	s.userPermissions.dropTarget(id)
	return nil
}

// List filters, orders and pages permissions.
func (r *PermissionRepository) List(_ context.Context, filter port.ListFilter) ([]domain.Permission, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]domain.Permission, 0, len(r.store.permissions))
	for _, permission := range r.store.permissions {
		if matchesSearch(filter.Search, permission.Name, deref(permission.Module)) && matchesModule(filter, permission.Module) {
			matched = append(matched, permission)
		}
	}

	total := len(matched)
	return sortAndPage(matched, filter, guardedPermissionField, permissionKey), total, nil
}

// ListByRole returns the role's permissions ordered by name.
func (r *PermissionRepository) ListByRole(_ context.Context, roleID string) ([]domain.Permission, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	permissions := make([]domain.Permission, 0)
	for permissionID := range r.store.rolePermissions[roleID] {
		if permission, ok := r.store.permissions[permissionID]; ok {
			permissions = append(permissions, permission)
		}
	}
	return sortAndPage(permissions, port.ListFilter{SortField: "name"}, guardedPermissionField, permissionKey), nil
}

// ListByUser returns the distinct permissions the user holds under guard, directly or via roles.
func (r *PermissionRepository) ListByUser(_ context.Context, userID string, guard string) ([]domain.Permission, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{})
	for permissionID := range s.userPermissions[userID] {
		ids[permissionID] = struct{}{}
	}
	for roleID := range s.userRoles[userID] {
		for permissionID := range s.rolePermissions[roleID] {
			ids[permissionID] = struct{}{}
		}
	}

	permissions := make([]domain.Permission, 0, len(ids))
	for permissionID := range ids {
		if permission, ok := s.permissions[permissionID]; ok && permission.GuardName == guard {
			permissions = append(permissions, permission)
		}
	}
	return sortAndPage(permissions, port.ListFilter{SortField: "name"}, guardedPermissionField, permissionKey), nil
}

func permissionKey(permission domain.Permission) string { return permission.ID }

func guardedPermissionField(permission domain.Permission, name string) (string, time.Time, bool) {
	return guardedField(permission.Name, permission.GuardName, permission.Module, permission.CreatedAt, permission.UpdatedAt, name)
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
