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

// UsernameGenerator produces candidate usernames that are free in the store at check time.
type UsernameGenerator interface {
	MaxAttempts() int
	GenerateCounted(ctx context.Context, budget int) (string, int, error)
	Exhausted(attempts int) error
}

// CreateUserInput captures the payload for creating a user. An empty Username is generated.
type CreateUserInput struct {
	ID        string  `validate:"max=64"`
	Name      string  `validate:"required,max=255"`
	Email     string  `validate:"required,email,max=255"`
	Username  string  `validate:"max=255,excludes=@"`
	Password  string  `validate:"required,max=255"`
	AvatarURL *string `validate:"omitempty,url,max=2048"`
}

// UpdateUserInput describes a partial update; nil fields are left untouched.
type UpdateUserInput struct {
	Name      *string
	Email     *string
	Username  *string
	Password  *string
	AvatarURL *string
}

// UserServiceDeps wires a UserService.
type UserServiceDeps struct {
	Users          port.UserRepository
	Roles          port.RoleRepository
	Permissions    port.PermissionRepository
	Keys           identity.KeyAssigner
	Usernames      UsernameGenerator
	Hasher         port.PasswordHasher
	PasswordPolicy port.PasswordPolicyValidator
	Events         port.EventPublisher
	Cache          port.PermissionCache
	Guard          string
	Logger         *zap.Logger
}

// UserService handles user lifecycle operations and the user side of role assignment.
type UserService struct {
	users       port.UserRepository
	roles       port.RoleRepository
	permissions port.PermissionRepository
	keys        identity.KeyAssigner
	usernames   UsernameGenerator
	hasher      port.PasswordHasher
	policy      port.PasswordPolicyValidator
	events      port.EventPublisher
	cache       port.PermissionCache
	guard       string
	logger      *zap.Logger
	now         func() time.Time
}

// NewUserService constructs UserService.
func NewUserService(deps UserServiceDeps) (*UserService, error) {
	if deps.Users == nil || deps.Roles == nil || deps.Permissions == nil {
		return nil, fmt.Errorf("user service: repositories are required")
	}
	if deps.Hasher == nil {
		return nil, fmt.Errorf("user service: password hasher is required")
	}
	if deps.Usernames == nil {
		return nil, fmt.Errorf("user service: username generator is required")
	}
	keys := deps.Keys
	if keys.Mode() == "" {
		keys = identity.NewKeyAssigner(domain.KeyModeUUID)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:       deps.Users,
		roles:       deps.Roles,
		permissions: deps.Permissions,
		keys:        keys,
		usernames:   deps.Usernames,
		hasher:      deps.Hasher,
		policy:      deps.PasswordPolicy,
		events:      deps.Events,
		cache:       deps.Cache,
		guard:       defaultGuard(deps.Guard),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// List returns one page of users matching the query.
func (s *UserService) List(ctx context.Context, query ListQuery) (domain.Page[domain.User], error) {
	filter, page, size, err := query.resolve(userSortColumns)
	if err != nil {
		return domain.Page[domain.User]{}, err
	}
	filter.Module = ""

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	return newPage(users, total, page, size), nil
}

// Create validates input, assigns the key, generates a username when none is given and persists the user.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Username = strings.TrimSpace(input.Username)
	input.AvatarURL = trimmedOrNil(input.AvatarURL)

	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.checkPassword(input.Password, domain.PasswordContext{Name: input.Name, Username: input.Username, Email: input.Email}); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           s.keys.Assign(input.ID),
		Name:         input.Name,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		AvatarURL:    input.AvatarURL,
	}

	generated := user.Username == ""
	var created *domain.User
	if generated {
		created, err = s.createWithGeneratedUsername(ctx, user)
	} else {
		created, err = s.users.Create(ctx, user)
		if err != nil {
			err = writeError("create user", err, nil)
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", zap.String("user_id", created.ID), zap.Bool("username_generated", generated))
	s.publish("user created", created.ID, func() error {
		return s.events.PublishUserCreated(ctx, domain.UserCreatedEvent{
			EventID:           uuid.NewString(),
			UserID:            created.ID,
			Username:          created.Username,
			Email:             created.Email,
			UsernameGenerated: generated,
			CreatedAt:         created.CreatedAt,
		})
	})
	return created, nil
}

// createWithGeneratedUsername retries on username conflicts at insert time. Candidates drawn for
// the existence check and for retries share a single MaxAttempts budget.
func (s *UserService) createWithGeneratedUsername(ctx context.Context, user domain.User) (*domain.User, error) {
	maxAttempts := s.usernames.MaxAttempts()
	spent := 0
	for {
		username, used, err := s.usernames.GenerateCounted(ctx, maxAttempts-spent)
		spent += used
		if err != nil {
			if errors.Is(err, domain.ErrGenerationExhausted) {
				return nil, fmt.Errorf("generate username: %w", s.usernames.Exhausted(spent))
			}
			return nil, fmt.Errorf("generate username: %w", err)
		}

		user.Username = username
		created, err := s.users.Create(ctx, user)
		if err == nil {
			return created, nil
		}
		if !repository.IsConstraint(err, repository.ConstraintUsersUsername) {
			return nil, writeError("create user", err, nil)
		}

		s.logger.Debug("generated username taken at insert", zap.Int("attempts", spent))
		if spent >= maxAttempts {
			return nil, fmt.Errorf("generate username: %w", s.usernames.Exhausted(spent))
		}
	}
}

// Update applies a partial update. A blank password is ignored, as is a blank username.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	changed := make([]string, 0, 4)
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, invalidInput("name is required")
		}
		if name != user.Name {
			user.Name = name
			changed = append(changed, "name")
		}
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			user.Email = email
			changed = append(changed, "email")
		}
	}
	if input.Username != nil {
		if username := strings.TrimSpace(*input.Username); username != "" && username != user.Username {
			if err := validateUsername(username); err != nil {
				return nil, err
			}
			user.Username = username
			changed = append(changed, "username")
		}
	}
	if input.AvatarURL != nil {
		user.AvatarURL = trimmedOrNil(input.AvatarURL)
		changed = append(changed, "avatar_url")
	}

	passwordChanged := false
	if input.Password != nil && strings.TrimSpace(*input.Password) != "" {
		password := *input.Password
		if err := s.checkPassword(password, domain.PasswordContext{Name: user.Name, Username: user.Username, Email: user.Email}); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
		passwordChanged = true
		changed = append(changed, "password")
	}

	updated, err := s.users.Update(ctx, *user)
	if err != nil {
		return nil, writeError("update user", err, ErrUserNotFound)
	}

	s.logger.Info("user updated", zap.String("user_id", updated.ID), zap.Strings("fields", changed))
	s.publish("user updated", updated.ID, func() error {
		return s.events.PublishUserUpdated(ctx, domain.UserUpdatedEvent{
			EventID:         uuid.NewString(),
			UserID:          updated.ID,
			ChangedFields:   changed,
			PasswordChanged: passwordChanged,
			UpdatedAt:       updated.UpdatedAt,
		})
	})
	return updated, nil
}

// Delete removes the user. It reports ErrUserNotFound when nothing was deleted.
func (s *UserService) Delete(ctx context.Context, id string) (bool, error) {
	user, err := s.users.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return false, writeError("delete user", err, ErrUserNotFound)
	}

	invalidatePermissionCache(ctx, s.cache, s.logger)
	s.logger.Info("user deleted", zap.String("user_id", user.ID))
	s.publish("user deleted", user.ID, func() error {
		return s.events.PublishUserDeleted(ctx, domain.UserDeletedEvent{
			EventID:   uuid.NewString(),
			UserID:    user.ID,
			Username:  user.Username,
			DeletedAt: s.now(),
		})
	})
	return true, nil
}

// FindByID returns the user or nil when no user has the key.
func (s *UserService) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return findOrNil(s.users.GetByID(ctx, strings.TrimSpace(id)))
}

// FindByEmail returns the user or nil when the email is unknown.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return findOrNil(s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email))))
}

// FindByUsername returns the user or nil when the username is unknown.
func (s *UserService) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return findOrNil(s.users.GetByUsername(ctx, strings.TrimSpace(username)))
}

// AssignRoles adds the named roles to the user and returns the user's full role list.
func (s *UserService) AssignRoles(ctx context.Context, userID string, names []string, guard string) ([]domain.Role, error) {
	return s.linkRoles(ctx, userID, names, guard, true)
}

// SyncRoles replaces the user's roles with the named ones.
func (s *UserService) SyncRoles(ctx context.Context, userID string, names []string, guard string) ([]domain.Role, error) {
	return s.linkRoles(ctx, userID, names, guard, false)
}

func (s *UserService) linkRoles(ctx context.Context, userID string, names []string, guard string, additive bool) ([]domain.Role, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	guard = s.guardOr(guard)

	roles, err := resolveRoles(ctx, s.roles, names, guard)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}

	if additive {
		err = s.users.AssignRoles(ctx, user.ID, ids)
	} else {
		err = s.users.SyncRoles(ctx, user.ID, ids)
	}
	if err != nil {
		return nil, writeError("link roles", err, ErrUserNotFound)
	}
	invalidatePermissionCache(ctx, s.cache, s.logger)

	assignments := make([]domain.RoleAssignment, 0, len(roles))
	for _, role := range roles {
		assignments = append(assignments, domain.RoleAssignment{RoleID: role.ID, RoleName: role.Name})
	}
	s.logger.Info("user roles changed", zap.String("user_id", user.ID), zap.Bool("additive", additive), zap.Strings("roles", domain.RoleNames(roles)))
	s.publish("user roles synced", user.ID, func() error {
		return s.events.PublishUserRolesSynced(ctx, domain.UserRolesSyncedEvent{
			EventID:  uuid.NewString(),
			UserID:   user.ID,
			Guard:    guard,
			Roles:    assignments,
			Additive: additive,
			SyncedAt: s.now(),
		})
	})

	current, err := s.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return current, nil
}

// GivePermissions grants the named permissions directly to the user.
func (s *UserService) GivePermissions(ctx context.Context, userID string, names []string, guard string) ([]domain.Permission, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	guard = s.guardOr(guard)

	permissions, err := resolvePermissions(ctx, s.permissions, names, guard)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		ids = append(ids, permission.ID)
	}

	if err := s.users.GivePermissions(ctx, user.ID, ids); err != nil {
		return nil, writeError("give permissions", err, ErrUserNotFound)
	}
	invalidatePermissionCache(ctx, s.cache, s.logger)
	s.logger.Info("user permissions granted", zap.String("user_id", user.ID), zap.Strings("permissions", domain.PermissionNames(permissions)))
	return permissions, nil
}

// RolesOf lists the user's roles ordered by name.
func (s *UserService) RolesOf(ctx context.Context, userID string) ([]domain.Role, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return roles, nil
}

// PermissionsOf lists the user's effective permissions under guard.
func (s *UserService) PermissionsOf(ctx context.Context, userID string, guard string) ([]domain.Permission, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	permissions, err := s.permissions.ListByUser(ctx, user.ID, s.guardOr(guard))
	if err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	return permissions, nil
}

func (s *UserService) requireUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *UserService) checkPassword(password string, ctx domain.PasswordContext) error {
	if s.policy == nil {
		return nil
	}
	if err := s.policy.Validate(password, ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func (s *UserService) guardOr(guard string) string {
	return defaultGuardOr(guard, s.guard)
}

func (s *UserService) publish(what, userID string, send func() error) {
	if s.events == nil {
		return
	}
	if err := send(); err != nil {
		s.logger.Warn("publish "+what+" event failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func findOrNil[T any](found *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return found, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func defaultGuard(guard string) string {
	if guard = strings.TrimSpace(guard); guard != "" {
		return guard
	}
	return domain.DefaultGuard
}
