package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/infra/logger"
	"github.com/arklim/accounts-iam/internal/infra/security"
)

// BootstrapInput describes the administrator to provision.
type BootstrapInput struct {
	RoleName      string
	Guard         string
	AdminName     string
	AdminEmail    string
	AdminUsername string
	AdminPassword string
}

// BootstrapResult reports what the bootstrap created or found.
type BootstrapResult struct {
	CreatedPermissions []string
	Role               *domain.Role
	RoleCreated        bool
	Admin              *domain.User
	AdminCreated       bool
	// GeneratedPassword is set only when no admin password was supplied.
	GeneratedPassword string
}

// Bootstrapper seeds the service's own permissions, an administrator role holding all of them
// and a first administrator account. Every step is idempotent.
type Bootstrapper struct {
	users       *UserService
	roles       *RoleService
	permissions *PermissionService
	logger      *zap.Logger
	newPassword func() (string, error)
}

// NewBootstrapper constructs a Bootstrapper.
func NewBootstrapper(users *UserService, roles *RoleService, permissions *PermissionService, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{
		users:       users,
		roles:       roles,
		permissions: permissions,
		logger:      logger,
		newPassword: func() (string, error) { return security.GeneratePassword(18) },
	}
}

// Run ensures permissions, the admin role and, when an email is given, the admin user.
func (b *Bootstrapper) Run(ctx context.Context, input BootstrapInput) (*BootstrapResult, error) {
	roleName := strings.TrimSpace(input.RoleName)
	if roleName == "" {
		roleName = "admin"
	}
	guard := defaultGuardOr(input.Guard, b.roles.guard)
	result := &BootstrapResult{}

	for _, name := range ManagedPermissions() {
		existing, err := b.permissions.FindByName(ctx, name, guard)
		if err != nil {
			return nil, fmt.Errorf("lookup permission %q: %w", name, err)
		}
		if existing != nil {
			continue
		}
		module, _, _ := strings.Cut(name, ".")
		if _, err := b.permissions.Create(ctx, CreatePermissionInput{Name: name, GuardName: guard, Module: &module}); err != nil {
			return nil, fmt.Errorf("create permission %q: %w", name, err)
		}
		result.CreatedPermissions = append(result.CreatedPermissions, name)
	}

	role, err := b.roles.FindByName(ctx, roleName, guard)
	if err != nil {
		return nil, fmt.Errorf("lookup role %q: %w", roleName, err)
	}
	if role == nil {
		role, err = b.roles.Create(ctx, CreateRoleInput{Name: roleName, GuardName: guard})
		if err != nil {
			return nil, fmt.Errorf("create role %q: %w", roleName, err)
		}
		result.RoleCreated = true
	}
	role, err = b.roles.GivePermissions(ctx, role.ID, ManagedPermissions())
	if err != nil {
		return nil, fmt.Errorf("grant role permissions: %w", err)
	}
	result.Role = role

	email := strings.TrimSpace(input.AdminEmail)
	if email == "" {
		return result, nil
	}

	admin, err := b.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	if admin == nil {
		password := input.AdminPassword
		if password == "" {
			if password, err = b.newPassword(); err != nil {
				return nil, err
			}
			result.GeneratedPassword = password
		}
		name := strings.TrimSpace(input.AdminName)
		if name == "" {
			name = "Administrator"
		}
		admin, err = b.users.Create(ctx, CreateUserInput{
			Name:     name,
			Email:    email,
			Username: input.AdminUsername,
			Password: password,
		})
		if err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		result.AdminCreated = true
	}

	if _, err := b.users.AssignRoles(ctx, admin.ID, []string{role.Name}, guard); err != nil {
		return nil, fmt.Errorf("assign admin role: %w", err)
	}
	sanitized := admin.Sanitized()
	result.Admin = &sanitized

	b.logger.Info("bootstrap completed",
		zap.Int("permissions_created", len(result.CreatedPermissions)),
		zap.Bool("role_created", result.RoleCreated),
		zap.Bool("admin_created", result.AdminCreated),
		zap.String("admin_id", admin.ID),
		zap.String("admin_email", logger.MaskEmail(admin.Email)))
	return result, nil
}
