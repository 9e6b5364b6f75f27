package memory

import (
	"context"
	"time"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
	"github.com/arklim/accounts-iam/internal/repository"
)

// UserRepository implements port.UserRepository over a Store.
type UserRepository struct {
	store *Store
}

// Create inserts a user, enforcing key, username and email uniqueness.
func (r *UserRepository) Create(_ context.Context, user domain.User) (*domain.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID != "" {
		if _, exists := s.users[user.ID]; exists {
			return nil, conflict("users_pkey")
		}
	}
	if err := s.checkUserUnique(user, ""); err != nil {
		return nil, err
	}

	user.ID = s.assignKey("users", user.ID)
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	s.users[user.ID] = user

	created := user
	return &created, nil
}

func (s *Store) checkUserUnique(user domain.User, selfID string) error {
	for id, existing := range s.users {
		if id == selfID {
			continue
		}
		if existing.Username == user.Username {
			return conflict(repository.ConstraintUsersUsername)
		}
		if existing.Email == user.Email {
			return conflict(repository.ConstraintUsersEmail)
		}
	}
	return nil
}

// GetByID retrieves a user by key.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username })
}

func (r *UserRepository) find(match func(domain.User) bool) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, user := range r.store.users {
		if match(user) {
			found := user
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ExistsByUsername reports whether the username is taken.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if err == repository.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// Update replaces the mutable fields of an existing user.
func (r *UserRepository) Update(_ context.Context, user domain.User) (*domain.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := s.checkUserUnique(user, user.ID); err != nil {
		return nil, err
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = s.now()
	s.users[user.ID] = user

	updated := user
	return &updated, nil
}

// Delete removes the user and its role and permission links.
func (r *UserRepository) Delete(_ context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	delete(s.userRoles, id)
	delete(s.userPermissions, id)
	return nil
}

// List filters, orders and pages users.
func (r *UserRepository) List(_ context.Context, filter port.ListFilter) ([]domain.User, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]domain.User, 0, len(r.store.users))
	for _, user := range r.store.users {
		if matchesSearch(filter.Search, user.Name, user.Email, user.Username) {
			matched = append(matched, user)
		}
	}

	total := len(matched)
	page := sortAndPage(matched, filter, userField, func(u domain.User) string { return u.ID })
	return page, total, nil
}

func userField(u domain.User, name string) (string, time.Time, bool) {
	switch name {
	case "name":
		return u.Name, time.Time{}, false
	case "email":
		return u.Email, time.Time{}, false
	case "username":
		return u.Username, time.Time{}, false
	case "updated_at":
		return "", u.UpdatedAt, true
	default:
		return "", u.CreatedAt, true
	}
}

// AssignRoles links roles to the user, keeping existing links.
func (r *UserRepository) AssignRoles(_ context.Context, userID string, roleIDs []string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinkTargets(userID, roleIDs, s.roleExists); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		s.userRoles.add(userID, roleID)
	}
	return nil
}

// SyncRoles replaces the user's roles.
func (r *UserRepository) SyncRoles(_ context.Context, userID string, roleIDs []string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinkTargets(userID, roleIDs, s.roleExists); err != nil {
		return err
	}
	delete(s.userRoles, userID)
	for _, roleID := range roleIDs {
		s.userRoles.add(userID, roleID)
	}
	return nil
}

// GivePermissions grants permissions directly to the user.
func (r *UserRepository) GivePermissions(_ context.Context, userID string, permissionIDs []string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLinkTargets(userID, permissionIDs, s.permissionExists); err != nil {
		return err
	}
	for _, permissionID := range permissionIDs {
		s.userPermissions.add(userID, permissionID)
	}
	return nil
}

func (s *Store) checkLinkTargets(userID string, targetIDs []string, exists func(string) bool) error {
	if _, ok := s.users[userID]; !ok {
		return conflict(repository.ConstraintForeignKey)
	}
	for _, id := range targetIDs {
		if !exists(id) {
			return conflict(repository.ConstraintForeignKey)
		}
	}
	return nil
}

func (s *Store) roleExists(id string) bool {
	_, ok := s.roles[id]
	return ok
}

func (s *Store) permissionExists(id string) bool {
	_, ok := s.permissions[id]
	return ok
}

var _ port.UserRepository = (*UserRepository)(nil)
