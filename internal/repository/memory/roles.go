package memory

import (
	"context"
	"time"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

// RoleRepository implements port.RoleRepository over a Store.
type RoleRepository struct {
	store *Store
}

// Create inserts a role, enforcing (name, guard_name) uniqueness.
func (r *RoleRepository) Create(_ context.Context, role domain.Role) (*domain.Role, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRole(role)
}

// CreateWithPermissions inserts the role and its permission links under one lock.
func (r *RoleRepository) CreateWithPermissions(_ context.Context, role domain.Role, permissionIDs []string) (*domain.Role, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range permissionIDs {
		if !s.permissionExists(id) {
			return nil, conflict(repository.ConstraintForeignKey)
		}
	}
	created, err := s.createRole(role)
	if err != nil {
		return nil, err
	}
	for _, permissionID := range permissionIDs {
		s.rolePermissions.add(created.ID, permissionID)
	}
	return created, nil
}

func (s *Store) createRole(role domain.Role) (*domain.Role, error) {
	if role.ID != "" {
		if _, exists := s.roles[role.ID]; exists {
			return nil, conflict("roles_pkey")
		}
	}
	if s.roleNameTaken(role.Name, role.GuardName, "") {
		return nil, conflict(repository.ConstraintRolesName)
	}

	role.ID = s.assignKey("roles", role.ID)
	if role.CreatedAt.IsZero() {
		role.CreatedAt = s.now()
	}
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = role.CreatedAt
	}
	role.Permissions = nil
	s.roles[role.ID] = role

	created := role
	return &created, nil
}

func (s *Store) roleNameTaken(name, guard, selfID string) bool {
	for id, existing := range s.roles {
		if id != selfID && existing.Name == name && existing.GuardName == guard {
			return true
		}
	}
	return false
}

// GetByID retrieves a role by key.
func (r *RoleRepository) GetByID(_ context.Context, id string) (*domain.Role, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	role, ok := r.store.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

// GetByName retrieves a role by name within a guard.
func (r *RoleRepository) GetByName(_ context.Context, name string, guard string) (*domain.Role, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, role := range r.store.roles {
		if role.Name == name && role.GuardName == guard {
			found := role
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

// FindByNames returns the roles that exist among names under guard, ordered by name.
func (r *RoleRepository) FindByNames(_ context.Context, names []string, guard string) ([]domain.Role, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	roles := make([]domain.Role, 0, len(names))
	for _, role := range r.store.roles {
		if _, ok := wanted[role.Name]; ok && role.GuardName == guard {
			roles = append(roles, role)
		}
	}
	return sortAndPage(roles, port.ListFilter{SortField: "name"}, guardedRoleField, roleKey), nil
}

// Update replaces the mutable fields of an existing role.
func (r *RoleRepository) Update(_ context.Context, role domain.Role) (*domain.Role, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateRole(role)
}

// UpdateWithPermissions updates the role and replaces its permission links under one lock.
func (r *RoleRepository) UpdateWithPermissions(_ context.Context, role domain.Role, permissionIDs []string) (*domain.Role, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[role.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	if err := s.checkRoleLinks(role.ID, permissionIDs); err != nil {
		return nil, err
	}
	updated, err := s.updateRole(role)
	if err != nil {
		return nil, err
	}
	delete(s.rolePermissions, role.ID)
	for _, permissionID := range permissionIDs {
		s.rolePermissions.add(role.ID, permissionID)
	}
	return updated, nil
}

func (s *Store) updateRole(role domain.Role) (*domain.Role, error) {
	existing, ok := s.roles[role.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.roleNameTaken(role.Name, role.GuardName, role.ID) {
		return nil, conflict(repository.ConstraintRolesName)
	}

	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = s.now()
	role.Permissions = nil
	s.roles[role.ID] = role

	updated := role
	return &updated, nil
}

// Delete removes the role and every link that references it.
func (r *RoleRepository) Delete(_ context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.rolePermissions, id)
	s.userRoles.dropTarget(id)
	return nil
}

// List filters, orders and pages roles.
func (r *RoleRepository) List(_ context.Context, filter port.ListFilter) ([]domain.Role, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]domain.Role, 0, len(r.store.roles))
	for _, role := range r.store.roles {
		if matchesSearch(filter.Search, role.Name, deref(role.Module)) && matchesModule(filter, role.Module) {
			matched = append(matched, role)
		}
	}

	total := len(matched)
	return sortAndPage(matched, filter, guardedRoleField, roleKey), total, nil
}

// SyncPermissions replaces the role's permission set under the store lock.
func (r *RoleRepository) SyncPermissions(_ context.Context, roleID string, permissionIDs []string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRoleLinks(roleID, permissionIDs); err != nil {
		return err
	}
	delete(s.rolePermissions, roleID)
	for _, permissionID := range permissionIDs {
		s.rolePermissions.add(roleID, permissionID)
	}
	return nil
}

// AssignPermissions adds permissions to the role and reports how many links were new.
func (r *RoleRepository) AssignPermissions(_ context.Context, roleID string, permissionIDs []string) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRoleLinks(roleID, permissionIDs); err != nil {
		return 0, err
	}
	added := 0
	for _, permissionID := range permissionIDs {
		if s.rolePermissions.add(roleID, permissionID) {
			added++
		}
	}
	return added, nil
}

// RevokePermissions removes permissions from the role and reports how many links were dropped.
func (r *RoleRepository) RevokePermissions(_ context.Context, roleID string, permissionIDs []string) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, permissionID := range permissionIDs {
		if s.rolePermissions.remove(roleID, permissionID) {
			removed++
		}
	}
	return removed, nil
}

// ListByUser returns the roles linked to the user, ordered by name.
func (r *RoleRepository) ListByUser(_ context.Context, userID string) ([]domain.Role, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	roles := make([]domain.Role, 0)
	for roleID := range r.store.userRoles[userID] {
		if role, ok := r.store.roles[roleID]; ok {
			roles = append(roles, role)
		}
	}
	return sortAndPage(roles, port.ListFilter{SortField: "name"}, guardedRoleField, roleKey), nil
}

func (s *Store) checkRoleLinks(roleID string, permissionIDs []string) error {
	if !s.roleExists(roleID) {
		return conflict(repository.ConstraintForeignKey)
	}
	for _, id := range permissionIDs {
		if !s.permissionExists(id) {
			return conflict(repository.ConstraintForeignKey)
		}
	}
	return nil
}

func roleKey(role domain.Role) string { return role.ID }

func guardedRoleField(role domain.Role, name string) (string, time.Time, bool) {
	return guardedField(role.Name, role.GuardName, role.Module, role.CreatedAt, role.UpdatedAt, name)
}

func guardedField(entityName, guard string, module *string, createdAt, updatedAt time.Time, field string) (string, time.Time, bool) {
	switch field {
	case "name":
		return entityName, time.Time{}, false
	case "guard_name":
		return guard, time.Time{}, false
	case "module":
		return deref(module), time.Time{}, false
	case "updated_at":
		return "", updatedAt, true
	default:
		return "", createdAt, true
	}
}

var _ port.RoleRepository = (*RoleRepository)(nil)
